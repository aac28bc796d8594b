package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

// Dispatcher is whatever can answer a decoded tool call. Handler implements
// it; tests substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, params map[string]any) (any, error)
}

// Server drives the stdio transport loop (spec.md §6): one JSON-RPC-like
// request per input line, one response per output line, diagnostics on a
// separate logger so stdout is never shared with anything but responses.
type Server struct {
	handler Dispatcher
	log     *slog.Logger
}

// NewServer constructs a Server around handler. log receives diagnostics
// only — never the protocol stream itself.
func NewServer(handler Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{handler: handler, log: log}
}

// Run reads newline-delimited requests from in and writes newline-delimited
// responses to out until in reaches EOF or ctx is cancelled. Requests are
// processed one at a time, in arrival order; a request already being
// handled when ctx is cancelled still gets its response written (Dispatch
// implementations are expected to watch ctx themselves for anything
// long-running), but Run will not start a new one afterward.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			s.log.Error("failed to write response", slog.String("error", err.Error()))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return NewErrorResponse("", ErrCodeParseError, "failed to parse request", nil)
	}
	if req.Method == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "method is required", nil)
	}

	params, ok := req.Params.(map[string]any)
	if req.Params != nil && !ok {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "params must be an object", nil)
	}

	result, err := s.handler.Dispatch(ctx, req.Method, params)
	if err != nil {
		return s.errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, result)
}

func (s *Server) errorResponse(id string, err error) Response {
	var e *errs.Error
	if errors.As(err, &e) {
		code := ErrCodeDomain
		if e.Code == errs.InvalidInput || e.Code == errs.InvalidPath {
			code = ErrCodeInvalidParams
		}
		return NewErrorResponse(id, code, e.Message, map[string]string{"code": string(e.Code)})
	}
	s.log.Error("unclassified handler error", slog.String("error", err.Error()))
	return NewErrorResponse(id, ErrCodeInternalError, err.Error(), nil)
}
