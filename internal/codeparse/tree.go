// Package codeparse wraps tree-sitter to extract CodeSymbols and
// CodeReferences from source files (spec.md §4.6). The AST conversion keeps
// the teacher's manual node-walk approach rather than the tree-sitter query
// (.scm) API.
package codeparse

// Point is a 0-indexed row/column source position.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-agnostic AST node, converted from a tree-sitter node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Tree is a parsed file's AST plus its source bytes.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// GetContent returns the source slice a node spans.
func (n *Node) GetContent(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns all direct children of the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAllByType recursively collects every node of the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var out []*Node
	if n.Type == nodeType {
		out = append(out, n)
	}
	for _, c := range n.Children {
		out = append(out, c.FindAllByType(nodeType)...)
	}
	return out
}

// Walk performs a depth-first traversal, calling fn on each node; fn
// returning false prunes that node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
