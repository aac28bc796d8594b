// Package transport implements the line-delimited JSON-RPC-like stdio
// protocol the daemon speaks (spec.md §6): one JSON request per input line,
// one JSON response per output line, diagnostics confined to stderr so they
// never corrupt the stream.
package transport

// JSON-RPC 2.0 method names — the tool surface spec.md §6 names.
const (
	MethodStoreMemory    = "store_memory"
	MethodGetMemory      = "get_memory"
	MethodUpdateMemory   = "update_memory"
	MethodDeleteMemory   = "delete_memory"
	MethodListMemories   = "list_memories"
	MethodSearch         = "search"
	MethodSearchText     = "search_text"
	MethodRecall         = "recall"
	MethodCreateEntity   = "create_entity"
	MethodCreateRelation = "create_relation"
	MethodGetRelated     = "get_related"
	MethodDetectCommunities = "detect_communities"
	MethodIndexProject   = "index_project"
	MethodSearchCode     = "search_code"
	MethodGetIndexStatus = "get_index_status"
	MethodListProjects   = "list_projects"
	MethodDeleteProject  = "delete_project"
	MethodGetValid       = "get_valid"
	MethodGetValidAt     = "get_valid_at"
	MethodInvalidate     = "invalidate"
	MethodGetStatus      = "get_status"
	MethodResetAllMemory = "reset_all_memory"
	MethodPing           = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeDomain is used for every error surfaced from a tool handler's own
// *errs.Error (spec.md §7's classified taxonomy is carried in Data.Code
// rather than mapped onto further JSON-RPC-specific codes).
const ErrCodeDomain = -32000

// Request is a single JSON-RPC 2.0 request, one per input line.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response is a single JSON-RPC 2.0 response, one per output line.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error is a JSON-RPC 2.0 error object. Data carries the classified
// errs.Code string when the failure originated from a tool handler.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse wraps result as a successful JSON-RPC response.
func NewSuccessResponse(id string, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

// NewErrorResponse builds an error JSON-RPC response.
func NewErrorResponse(id string, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
