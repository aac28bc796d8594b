// Package codechunk splits a source file into fixed-line-count chunks
// (spec.md §4.6): contiguous, non-overlapping, gap-free tiles of at most
// CHUNK_MAX_LINES lines, with whitespace-only chunks dropped.
package codechunk

import (
	"strings"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/hashutil"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// MaxLines is CHUNK_MAX_LINES from spec.md §3/§4.6.
const MaxLines = 100

// Input is one file to chunk.
type Input struct {
	ProjectID string
	FilePath  string
	Content   string
	Language  string
}

// Chunk splits in.Content into fixed-line chunks. Chunks tile the file with
// no overlap and no gaps in indexed regions; a chunk consisting only of
// whitespace is discarded (spec.md §3 CodeChunk invariant).
func Chunk(in Input) []types.CodeChunk {
	lines := splitLines(in.Content)
	if len(lines) == 0 {
		return nil
	}

	var out []types.CodeChunk
	now := time.Now()
	for start := 0; start < len(lines); start += MaxLines {
		end := start + MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, types.CodeChunk{
			FilePath:    in.FilePath,
			Content:     body,
			Language:    in.Language,
			StartLine:   start + 1,
			EndLine:     end,
			ChunkType:   types.ChunkOther,
			ContentHash: hashutil.ContentHash(body),
			ProjectID:   in.ProjectID,
			IndexedAt:   now,
		})
	}
	return out
}

// splitLines splits on "\n" and drops the empty element a final newline
// leaves behind, so a file ending in a newline has as many lines as editors
// report for it and line numbers stay 1-based.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
