// Package types defines the persisted record shapes shared across the
// embedding, indexing, graph, and retrieval packages: memories, the
// knowledge graph, and the code index.
package types

import "time"

// EmbeddingState tracks where a record's vector stands relative to its content.
type EmbeddingState string

const (
	EmbeddingNone    EmbeddingState = "none"
	EmbeddingPending EmbeddingState = "pending"
	EmbeddingReady   EmbeddingState = "ready"
	EmbeddingStale   EmbeddingState = "stale"
)

// MemoryKind classifies a Memory's provenance.
type MemoryKind string

const (
	KindEpisodic   MemoryKind = "episodic"
	KindSemantic   MemoryKind = "semantic"
	KindProcedural MemoryKind = "procedural"
)

// Memory is a text fact with bitemporal validity.
type Memory struct {
	ID                 string
	Content             string
	Embedding           []float32
	Kind                MemoryKind
	UserID              string
	Metadata            map[string]any
	EventTime           time.Time
	IngestionTime       time.Time
	ValidFrom           time.Time
	ValidUntil          *time.Time
	Importance          float64
	InvalidationReason  string
	ContentHash         string
	EmbeddingState      EmbeddingState
	// EntityID links a memory to the knowledge-graph entity it was created
	// from or linked to, if any. Empty when the memory has no graph tie-in.
	// Used to seed the PPR subgraph during hybrid recall.
	EntityID string
}

// IsValidAt reports whether the memory's validity window covers ts.
func (m *Memory) IsValidAt(ts time.Time) bool {
	if ts.Before(m.ValidFrom) {
		return false
	}
	return m.ValidUntil == nil || ts.Before(*m.ValidUntil)
}

// Entity is a node in the knowledge graph.
type Entity struct {
	ID         string
	Name       string
	EntityType string
	Description string
	Embedding  []float32
	UserID     string
	CreatedAt  time.Time
}

// RelationDirection selects which edge direction a traversal follows.
type RelationDirection string

const (
	DirectionOutgoing RelationDirection = "outgoing"
	DirectionIncoming RelationDirection = "incoming"
	DirectionBoth     RelationDirection = "both"
)

// Relation is a directed, weighted, time-bounded edge between two entities.
type Relation struct {
	ID           string
	FromEntity   string
	ToEntity     string
	RelationType string
	Weight       float64
	ValidFrom    time.Time
	ValidUntil   *time.Time
}

// ChunkType classifies a CodeChunk's content.
type ChunkType string

const (
	ChunkOther    ChunkType = "other"
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkComment  ChunkType = "comment"
)

// CodeChunk is a fixed-line slice of a source file.
type CodeChunk struct {
	ID          string
	FilePath    string
	Content     string
	Language    string
	StartLine   int
	EndLine     int
	ChunkType   ChunkType
	Name        string
	Embedding   []float32
	ContentHash string
	ProjectID   string
	IndexedAt   time.Time
}

// SymbolType classifies a CodeSymbol's definition kind.
type SymbolType string

const (
	SymbolFunction  SymbolType = "function"
	SymbolMethod    SymbolType = "method"
	SymbolClass     SymbolType = "class"
	SymbolStruct    SymbolType = "struct"
	SymbolEnum      SymbolType = "enum"
	SymbolInterface SymbolType = "interface"
	SymbolModule    SymbolType = "module"
	SymbolTrait     SymbolType = "trait"
	SymbolImport    SymbolType = "import"
)

// CodeSymbol is a definition extracted by the parser.
type CodeSymbol struct {
	ID         string
	Name       string
	SymbolType SymbolType
	FilePath   string
	StartLine  int
	EndLine    int
	ProjectID  string
	Signature  string
	Embedding  []float32
}

// MaxSignatureLen is the truncation bound for CodeSymbol.Signature.
const MaxSignatureLen = 500

// ReferenceRelationType classifies a CodeReference's use-site kind.
type ReferenceRelationType string

const (
	RelationCalls     ReferenceRelationType = "calls"
	RelationImports   ReferenceRelationType = "imports"
	RelationContains  ReferenceRelationType = "contains"
	RelationImplements ReferenceRelationType = "implements"
	RelationExtends   ReferenceRelationType = "extends"
)

// CodeReference is a use site discovered by the parser, prior to resolution.
type CodeReference struct {
	Name           string
	FromSymbol     string
	FromSymbolLine int
	ToSymbol       string
	RelationType   ReferenceRelationType
	FilePath       string
	Line           int
	Column         int
}

// SymbolRelation is a resolved directed edge between two symbols.
type SymbolRelation struct {
	ID           string
	FromSymbol   string
	ToSymbol     string
	RelationType ReferenceRelationType
	FilePath     string
	LineNumber   int
	ProjectID    string
	CreatedAt    time.Time
}

// IndexState is the lifecycle state of an IndexStatus.
type IndexState string

const (
	IndexStateIndexing        IndexState = "indexing"
	IndexStateEmbeddingPending IndexState = "embedding_pending"
	IndexStateCompleted       IndexState = "completed"
	IndexStateFailed          IndexState = "failed"
)

// IndexStatus is the per-project progress record.
type IndexStatus struct {
	ProjectID     string
	State         IndexState
	TotalFiles    int
	IndexedFiles  int
	TotalChunks   int
	TotalSymbols  int
	StartedAt     time.Time
	CompletedAt   *time.Time
	ErrorMessage  string
}
