// Package hashutil provides the content-hashing primitives shared by the
// embedding cache, the code indexer's re-embed gate, and symbol IDs. It
// standardizes on BLAKE3 for speed on the large volumes of source text and
// chunk content this engine hashes on every index pass.
package hashutil

import (
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"
)

// ContentHash returns the hex-encoded BLAKE3-256 digest of text. Callers pass
// already-normalized text; this function does not itself normalize so that
// it can also hash values where whitespace/case are significant (e.g. raw
// file bytes for the indexer's unchanged-file check).
func ContentHash(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbeddingCacheKey hashes the tuple (normalized_text, model_identifier) as
// described by the embedding cache's keying rule: input is normalized by
// trimming surrounding whitespace and lowercasing before hashing, and the
// model identifier is folded into the digest so the same text under two
// models never collides.
func EmbeddingCacheKey(text, modelName string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(normalized))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(modelName))
	return hex.EncodeToString(h.Sum(nil))
}

// SymbolID16 returns the first 16 hex characters (64 bits) of the BLAKE3
// digest of the given components joined by NUL, used as a stable short
// identifier for code symbols (hash16 in the symbol index schema).
func SymbolID16(components ...string) string {
	h := blake3.New(32, nil)
	for i, c := range components {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
