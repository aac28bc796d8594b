package codechunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_TilesWithoutOverlapOrGaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 250; i++ {
		b.WriteString("line\n")
	}
	chunks := Chunk(Input{ProjectID: "p", FilePath: "f.go", Content: b.String(), Language: "go"})

	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 100, chunks[0].EndLine)
	assert.Equal(t, 101, chunks[1].StartLine)
	assert.Equal(t, 200, chunks[1].EndLine)
	assert.Equal(t, 201, chunks[2].StartLine)
	assert.Equal(t, 250, chunks[2].EndLine)

	for _, c := range chunks {
		assert.LessOrEqual(t, c.EndLine-c.StartLine+1, MaxLines)
	}
}

func TestChunk_DropsWhitespaceOnlyChunks(t *testing.T) {
	content := strings.Repeat("   \n", 50)
	chunks := Chunk(Input{FilePath: "f.go", Content: content})
	assert.Empty(t, chunks)
}

func TestChunk_EmptyFileProducesNoChunks(t *testing.T) {
	assert.Empty(t, Chunk(Input{FilePath: "f.go", Content: ""}))
}

func TestChunk_ContentHashIsStable(t *testing.T) {
	in := Input{FilePath: "f.go", Content: "package main\nfunc main() {}\n"}
	c1 := Chunk(in)
	c2 := Chunk(in)
	require.Len(t, c1, 1)
	require.Len(t, c2, 1)
	assert.Equal(t, c1[0].ContentHash, c2[0].ContentHash)
}
