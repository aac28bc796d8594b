package transport

import (
	"time"

	"github.com/amanmcp-labs/memoryd/internal/retrieval"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// MemoryView is the wire representation of a types.Memory: timestamps
// render as RFC3339 and the embedding vector itself is never serialized
// back to the caller.
type MemoryView struct {
	ID                 string         `json:"id"`
	Content            string         `json:"content"`
	Kind               string         `json:"memory_type"`
	UserID             string         `json:"user_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	EventTime          time.Time      `json:"event_time"`
	IngestionTime      time.Time      `json:"ingestion_time"`
	ValidFrom          time.Time      `json:"valid_from"`
	ValidUntil         *time.Time     `json:"valid_until,omitempty"`
	Importance         float64        `json:"importance"`
	InvalidationReason string         `json:"invalidation_reason,omitempty"`
	EmbeddingState     string         `json:"embedding_state"`
	EntityID           string         `json:"entity_id,omitempty"`
}

func memoryView(m *types.Memory) MemoryView {
	return MemoryView{
		ID:                 m.ID,
		Content:             m.Content,
		Kind:                string(m.Kind),
		UserID:              m.UserID,
		Metadata:            m.Metadata,
		EventTime:           m.EventTime,
		IngestionTime:       m.IngestionTime,
		ValidFrom:           m.ValidFrom,
		ValidUntil:          m.ValidUntil,
		Importance:          m.Importance,
		InvalidationReason:  m.InvalidationReason,
		EmbeddingState:      string(m.EmbeddingState),
		EntityID:            m.EntityID,
	}
}

func memoryViews(ms []*types.Memory) []MemoryView {
	out := make([]MemoryView, len(ms))
	for i, m := range ms {
		out[i] = memoryView(m)
	}
	return out
}

// EntityView is the wire representation of a types.Entity.
type EntityView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	EntityType  string    `json:"entity_type"`
	Description string    `json:"description,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func entityView(e *types.Entity) EntityView {
	return EntityView{
		ID:          e.ID,
		Name:        e.Name,
		EntityType:  e.EntityType,
		Description: e.Description,
		UserID:      e.UserID,
		CreatedAt:   e.CreatedAt,
	}
}

// RelationView is the wire representation of a types.Relation.
type RelationView struct {
	ID           string  `json:"id"`
	FromEntity   string  `json:"from_entity"`
	ToEntity     string  `json:"to_entity"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight"`
}

func relationView(r *types.Relation) RelationView {
	return RelationView{
		ID:           r.ID,
		FromEntity:   r.FromEntity,
		ToEntity:     r.ToEntity,
		RelationType: r.RelationType,
		Weight:       r.Weight,
	}
}

// ScoredMemoryView is one search/search_text/recall result.
type ScoredMemoryView struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Combined float64 `json:"score"`
	Vector   float64 `json:"vector_score,omitempty"`
	BM25     float64 `json:"bm25_score,omitempty"`
	PPR      float64 `json:"ppr_score,omitempty"`
}

func scoredMemoryViews(hits []retrieval.ScoredMemory) []ScoredMemoryView {
	out := make([]ScoredMemoryView, len(hits))
	for i, h := range hits {
		out[i] = ScoredMemoryView{
			ID:       h.ID,
			Content:  h.Content,
			Combined: h.Combined,
			Vector:   h.Vector,
			BM25:     h.BM25,
			PPR:      h.PPR,
		}
	}
	return out
}

// ScoredCodeView is one search_code result.
type ScoredCodeView struct {
	ID        string  `json:"id"`
	FilePath  string  `json:"file_path"`
	Content   string  `json:"content"`
	Language  string  `json:"language,omitempty"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Combined  float64 `json:"score"`
	Vector    float64 `json:"vector_score,omitempty"`
	BM25      float64 `json:"bm25_score,omitempty"`
}

func scoredCodeViews(hits []retrieval.ScoredCode) []ScoredCodeView {
	out := make([]ScoredCodeView, len(hits))
	for i, h := range hits {
		out[i] = ScoredCodeView{
			ID:        h.ID,
			FilePath:  h.FilePath,
			Content:   h.Content,
			Language:  h.Language,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Combined:  h.Combined,
			Vector:    h.Vector,
			BM25:      h.BM25,
		}
	}
	return out
}

// IndexStatusView is the wire representation of a types.IndexStatus.
type IndexStatusView struct {
	ProjectID    string     `json:"project_id"`
	State        string     `json:"state"`
	TotalFiles   int        `json:"total_files"`
	IndexedFiles int        `json:"indexed_files"`
	TotalChunks  int        `json:"total_chunks"`
	TotalSymbols int        `json:"total_symbols"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func indexStatusView(s *types.IndexStatus) IndexStatusView {
	return IndexStatusView{
		ProjectID:    s.ProjectID,
		State:        string(s.State),
		TotalFiles:   s.TotalFiles,
		IndexedFiles: s.IndexedFiles,
		TotalChunks:  s.TotalChunks,
		TotalSymbols: s.TotalSymbols,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		ErrorMessage: s.ErrorMessage,
	}
}

func indexStatusViews(ss []*types.IndexStatus) []IndexStatusView {
	out := make([]IndexStatusView, len(ss))
	for i, s := range ss {
		out[i] = indexStatusView(s)
	}
	return out
}
