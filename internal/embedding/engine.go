// Package embedding defines the Engine contract (spec.md §4.2) that produces
// unit-norm vectors from text, the recognized model registry, and the
// deterministic mock engine used for tests and environments without a real
// model backend. The real neural forward pass (tokenizer + weights +
// inference) is an external collaborator behind this interface — this
// package owns preprocessing-adjacent bookkeeping (dimensions, pooling
// family, MRL truncation) but not model loading.
package embedding

import (
	"context"
	"math"

	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
)

// Family selects the pooling strategy a model's architecture requires.
type Family string

const (
	// FamilyEncoder is a Bert-like encoder: mean-pool over sequence dim.
	FamilyEncoder Family = "encoder"
	// FamilyDecoder is a Qwen-like decoder: attention-mask-aware last-token pool.
	FamilyDecoder Family = "decoder"
	// FamilyTextEncoder is a Gemma-like text encoder: decoder-style pooling.
	FamilyTextEncoder Family = "text_encoder"
)

// ModelInfo describes one recognized embedding model.
type ModelInfo struct {
	Name     string
	BaseDim  int
	Family   Family
	MRLDim   int // 0 if the model does not support Matryoshka truncation
}

// Models is the table of recognized models (spec.md §9 / glossary).
var Models = map[string]ModelInfo{
	"e5_small": {Name: "e5_small", BaseDim: 384, Family: FamilyEncoder},
	"e5_multi": {Name: "e5_multi", BaseDim: 768, Family: FamilyEncoder},
	"nomic":    {Name: "nomic", BaseDim: 768, Family: FamilyEncoder},
	"bge_m3":   {Name: "bge_m3", BaseDim: 1024, Family: FamilyEncoder},
	"qwen3":    {Name: "qwen3", BaseDim: 1024, Family: FamilyDecoder, MRLDim: 1024},
	"gemma":    {Name: "gemma", BaseDim: 768, Family: FamilyTextEncoder, MRLDim: 768},
	"mock":     {Name: "mock", BaseDim: 768, Family: FamilyEncoder},
}

// Engine generates vector embeddings for text (spec.md §4.2).
type Engine interface {
	// Embed produces a unit-norm vector for a single input.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch produces one vector per input, order preserved.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the effective output dimension D (post-MRL truncation).
	Dimensions() int
	// ModelName returns the model identifier.
	ModelName() string
	// Available reports whether the engine is ready to serve requests.
	Available(ctx context.Context) bool
	// Close releases engine resources.
	Close() error
}

// NormalizeVector returns an L2-normalized copy of v, leaving v untouched; a
// zero vector is returned unchanged since it has no direction to normalize
// toward.
func NormalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}

// TruncateMRL truncates v to mrlDim dimensions and re-normalizes, per
// spec.md §4.2's Matryoshka post-processing rule. If mrlDim is 0 or ≥
// len(v), v is returned unchanged.
func TruncateMRL(v []float32, mrlDim int) []float32 {
	if mrlDim <= 0 || mrlDim >= len(v) {
		return v
	}
	return NormalizeVector(append([]float32(nil), v[:mrlDim]...))
}

// NewEngine constructs the engine for modelName. Only "mock" is implemented
// in-process; any other recognized model name is expected to be served by
// an external engine that this package's Engine interface merely describes
// (spec.md §4.2's forward pass is out of scope for this module).
func NewEngine(modelName string) (Engine, error) {
	info, ok := Models[modelName]
	if !ok {
		return nil, errs.New(errs.Internal, "unrecognized embedding model", nil).
			WithDetail("model", modelName)
	}
	if modelName != "mock" {
		return nil, errs.New(errs.Internal, "model requires an external engine", nil).
			WithDetail("model", modelName)
	}
	return NewMockEngine(info), nil
}

// MockEngine is deterministic: each input's vector is derived by expanding
// its content hash to D floats scaled to roughly [-1, 1]. No I/O, no model
// load; used for tests and offline operation (spec.md §4.2).
type MockEngine struct {
	info ModelInfo
}

// NewMockEngine constructs a MockEngine for the given model metadata.
func NewMockEngine(info ModelInfo) *MockEngine {
	return &MockEngine{info: info}
}

// Embed implements Engine.
func (e *MockEngine) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

// EmbedBatch implements Engine.
func (e *MockEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorFor(t)
	}
	return out, nil
}

// Dimensions implements Engine.
func (e *MockEngine) Dimensions() int {
	if e.info.MRLDim > 0 && e.info.MRLDim < e.info.BaseDim {
		return e.info.MRLDim
	}
	return e.info.BaseDim
}

// ModelName implements Engine.
func (e *MockEngine) ModelName() string { return e.info.Name }

// Available implements Engine; the mock engine has no load phase.
func (e *MockEngine) Available(context.Context) bool { return true }

// Close implements Engine; the mock engine holds no resources.
func (e *MockEngine) Close() error { return nil }

// vectorFor expands text's content hash into e.info.BaseDim pseudo-random
// floats in [-1, 1], then applies MRL truncation and unit normalization.
func (e *MockEngine) vectorFor(text string) []float32 {
	dim := e.info.BaseDim
	vec := make([]float32, dim)
	seed := hashutil.ContentHash(text)
	// Expand the hex digest cyclically, reading 2 hex chars (one byte) per
	// dimension and mapping [0,255] -> [-1,1].
	for i := 0; i < dim; i++ {
		b := hexByteAt(seed, i)
		vec[i] = float32(b)/127.5 - 1.0
	}
	vec = NormalizeVector(vec)
	return TruncateMRL(vec, e.info.MRLDim)
}

// hexByteAt decodes the byte at position i (mod len(hex)/2) of a hex string,
// cycling through the digest to cover dimensions larger than the digest.
func hexByteAt(hexDigest string, i int) byte {
	nBytes := len(hexDigest) / 2
	if nBytes == 0 {
		return 0
	}
	pos := (i % nBytes) * 2
	hi := hexVal(hexDigest[pos])
	lo := hexVal(hexDigest[pos+1])
	// Mix in the dimension index so repeated cycles through the digest don't
	// repeat the same byte sequence verbatim.
	return byte((hi<<4|lo)^byte(i*31)) // #nosec - not a cryptographic use
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
