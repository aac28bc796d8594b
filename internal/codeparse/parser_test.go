package codeparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp-labs/memoryd/internal/types"
)

const goSource = `package sample

func Greet(name string) string {
	return "hello " + name
}

type Widget struct {
	ID int
}

func (w *Widget) Render() string {
	return Greet("widget")
}
`

func TestParser_ExtractsGoSymbols(t *testing.T) {
	p := NewParser()
	defer p.Close()
	cfg, ok := p.Registry().GetByName("go")
	require.True(t, ok)

	tree, err := p.Parse(context.Background(), []byte(goSource), "go")
	require.NoError(t, err)

	symbols := ExtractSymbols(tree, cfg, "proj", "sample.go")
	names := map[string]types.SymbolType{}
	for _, s := range symbols {
		names[s.Name] = s.SymbolType
		assert.LessOrEqual(t, len(s.Signature), types.MaxSignatureLen)
	}

	assert.Equal(t, types.SymbolFunction, names["Greet"])
	assert.Equal(t, types.SymbolMethod, names["Render"])
	assert.Equal(t, types.SymbolStruct, names["Widget"])
}

func TestParser_ExtractsReferencesWithEnclosingSymbol(t *testing.T) {
	p := NewParser()
	defer p.Close()
	cfg, _ := p.Registry().GetByName("go")

	tree, err := p.Parse(context.Background(), []byte(goSource), "go")
	require.NoError(t, err)
	symbols := ExtractSymbols(tree, cfg, "proj", "sample.go")

	refs := ExtractReferences(tree, cfg, symbols, "sample.go")
	require.NotEmpty(t, refs)

	found := false
	for _, r := range refs {
		if r.RelationType == types.RelationCalls && r.ToSymbol == "Greet" {
			found = true
			assert.Equal(t, "Render", r.FromSymbol)
		}
	}
	assert.True(t, found, "expected a calls reference to Greet from Render")
}

func TestParser_UnsupportedLanguage(t *testing.T) {
	p := NewParser()
	defer p.Close()
	_, err := p.Parse(context.Background(), []byte("x"), "dart")
	assert.Error(t, err)
}
