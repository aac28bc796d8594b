package codeparse

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// MaxSignatureLen mirrors types.MaxSignatureLen for this package's own use.
const MaxSignatureLen = types.MaxSignatureLen

// Parser wraps tree-sitter parsing and definition/reference extraction for
// the registry's supported languages.
type Parser struct {
	parser   *sitter.Parser
	registry *Registry
}

// NewParser constructs a Parser backed by a fresh Registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: NewRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() { p.parser.Close() }

// Parse parses source for the given language name, returning a Tree. An
// unsupported language returns an error; callers should treat this as "no
// symbols" rather than a fatal condition (spec.md §4.6).
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, errs.New(errs.Internal, "unsupported language", nil).WithDetail("language", language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil || tsTree == nil {
		return nil, errs.Wrap(errs.Internal, err)
	}
	return &Tree{Root: convertNode(tsTree.RootNode()), Source: source, Language: language}, nil
}

func convertNode(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:       n.Type(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		EndPoint:   Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
		HasError:   n.HasError(),
		Children:   make([]*Node, 0, int(n.ChildCount())),
	}
	for i := uint32(0); i < n.ChildCount(); i++ {
		if c := n.Child(int(i)); c != nil {
			out.Children = append(out.Children, convertNode(c))
		}
	}
	return out
}

// ExtractSymbols walks tree and returns every definition captured by the
// language's DefinitionTypes (spec.md §4.6's "definition query").
func ExtractSymbols(tree *Tree, cfg *LanguageConfig, projectID, filePath string) []types.CodeSymbol {
	var symbols []types.CodeSymbol
	tree.Root.Walk(func(n *Node) bool {
		if symType, ok := cfg.DefinitionTypes[n.Type]; ok {
			nameNode := n.FindChildByType(cfg.NameField)
			name := ""
			if nameNode != nil {
				name = nameNode.GetContent(tree.Source)
			}
			if name != "" {
				symbols = append(symbols, types.CodeSymbol{
					Name:       name,
					SymbolType: symType,
					FilePath:   filePath,
					StartLine:  int(n.StartPoint.Row) + 1,
					EndLine:    int(n.EndPoint.Row) + 1,
					ProjectID:  projectID,
					Signature:  deriveSignature(n, tree.Source),
				})
			}
		}
		return true
	})
	return symbols
}

var wsCollapse = regexp.MustCompile(`\s+`)

// deriveSignature walks the node's text, strips everything from the first
// un-nested '{' or '[' onward, collapses whitespace/newlines, and truncates
// to MaxSignatureLen characters (spec.md §4.6).
func deriveSignature(n *Node, source []byte) string {
	text := n.GetContent(source)
	cut := len(text)
	depth := 0
	for i, r := range text {
		switch r {
		case '{', '[':
			if depth == 0 {
				cut = i
			}
		case '(':
			depth++
		case ')':
			depth--
		}
		if cut != len(text) {
			break
		}
	}
	sig := wsCollapse.ReplaceAllString(strings.TrimSpace(text[:cut]), " ")
	if len(sig) > MaxSignatureLen {
		sig = sig[:MaxSignatureLen]
	}
	return sig
}

// ExtractReferences walks tree and returns every call/import/heritage use
// site, attributing each to its enclosing definition by linear search over
// previously-found symbols whose line range contains the reference's line;
// "global" if none contain it (spec.md §4.6).
func ExtractReferences(tree *Tree, cfg *LanguageConfig, symbols []types.CodeSymbol, filePath string) []types.CodeReference {
	var refs []types.CodeReference

	collect := func(nodeTypes []string, relType types.ReferenceRelationType) {
		for _, nt := range nodeTypes {
			for _, n := range tree.Root.FindAllByType(nt) {
				name := referenceName(n, tree.Source)
				if name == "" {
					continue
				}
				line := int(n.StartPoint.Row) + 1
				enclosing := enclosingSymbol(symbols, filePath, line)
				refs = append(refs, types.CodeReference{
					Name:           name,
					FromSymbol:     enclosing,
					FromSymbolLine: line,
					ToSymbol:       name,
					RelationType:   relType,
					FilePath:       filePath,
					Line:           line,
					Column:         int(n.StartPoint.Column),
				})
			}
		}
	}

	collect(cfg.CallTypes, types.RelationCalls)
	collect(cfg.ImportTypes, types.RelationImports)
	collect(cfg.HeritageTypes, types.RelationExtends)

	return refs
}

// referenceName extracts a best-effort identifier from a use-site node: the
// first identifier-like child, or the node's own text as a fallback.
func referenceName(n *Node, source []byte) string {
	for _, c := range n.Children {
		if strings.Contains(c.Type, "identifier") {
			return c.GetContent(source)
		}
	}
	text := strings.TrimSpace(n.GetContent(source))
	if idx := strings.IndexAny(text, "(\n "); idx > 0 {
		text = text[:idx]
	}
	return text
}

func enclosingSymbol(symbols []types.CodeSymbol, filePath string, line int) string {
	for _, s := range symbols {
		if s.FilePath == filePath && line >= s.StartLine && line <= s.EndLine {
			return s.Name
		}
	}
	return "global"
}

// Registry exposes the parser's language registry for callers that need to
// look up a config (e.g. the indexer deciding whether to parse at all).
func (p *Parser) Registry() *Registry { return p.registry }
