package transport

// StoreMemoryParams are the arguments to store_memory.
type StoreMemoryParams struct {
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
}

// IDParams is the shared shape of get_memory/delete_memory.
type IDParams struct {
	ID string `json:"id"`
}

// UpdateMemoryParams are the arguments to update_memory. Pointer fields
// distinguish "not supplied" from "supplied as empty/zero".
type UpdateMemoryParams struct {
	ID         string         `json:"id"`
	Content    *string        `json:"content,omitempty"`
	MemoryType *string        `json:"memory_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ListMemoriesParams are the arguments to list_memories.
type ListMemoriesParams struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SearchParams are the arguments to search and search_text.
type SearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// RecallParams are the arguments to recall. Weight fields are pointers so an
// omitted weight falls back to retrieval.DefaultWeights rather than zero.
type RecallParams struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit,omitempty"`
	VectorWeight *float64 `json:"vector_weight,omitempty"`
	BM25Weight   *float64 `json:"bm25_weight,omitempty"`
	PPRWeight    *float64 `json:"ppr_weight,omitempty"`
}

// CreateEntityParams are the arguments to create_entity.
type CreateEntityParams struct {
	Name        string `json:"name"`
	EntityType  string `json:"entity_type,omitempty"`
	Description string `json:"description,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// CreateRelationParams are the arguments to create_relation.
type CreateRelationParams struct {
	FromEntity   string  `json:"from_entity"`
	ToEntity     string  `json:"to_entity"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight,omitempty"`
}

// GetRelatedParams are the arguments to get_related.
type GetRelatedParams struct {
	EntityID  string `json:"entity_id"`
	Depth     int    `json:"depth,omitempty"`
	Direction string `json:"direction,omitempty"` // "outgoing" | "incoming" | "both"
}

// IndexProjectParams are the arguments to index_project.
type IndexProjectParams struct {
	Path  string `json:"path"`
	Force bool   `json:"force,omitempty"`
}

// SearchCodeParams are the arguments to search_code.
type SearchCodeParams struct {
	Query     string `json:"query"`
	ProjectID string `json:"project_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ProjectIDParams is the shared shape of get_index_status/delete_project.
type ProjectIDParams struct {
	ProjectID string `json:"project_id"`
}

// GetValidParams are the arguments to get_valid.
type GetValidParams struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// GetValidAtParams are the arguments to get_valid_at. Timestamp is RFC3339.
type GetValidAtParams struct {
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// InvalidateParams are the arguments to invalidate.
type InvalidateParams struct {
	ID            string `json:"id"`
	Reason        string `json:"reason,omitempty"`
	SupersededBy  string `json:"superseded_by,omitempty"`
}

// ResetAllMemoryParams are the arguments to reset_all_memory.
type ResetAllMemoryParams struct {
	Confirm bool `json:"confirm"`
}

const defaultListLimit = 50
