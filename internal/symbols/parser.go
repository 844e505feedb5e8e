package symbols

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node is a language-independent view of a parsed syntax node.
type Node struct {
	Type      string
	StartByte uint32
	EndByte   uint32
	Children  []*Node
}

// GetContent returns the source text for a node.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType finds the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindDescendantByType finds the first node with the given type in
// depth-first order, including n itself.
func (n *Node) FindDescendantByType(nodeType string) *Node {
	if n.Type == nodeType {
		return n
	}
	for _, child := range n.Children {
		if found := child.FindDescendantByType(nodeType); found != nil {
			return found
		}
	}
	return nil
}

// parse parses source with the given grammar and converts the tree-sitter
// tree to Nodes. Returns nil on parser failure.
func parse(parser *sitter.Parser, lang *sitter.Language, source []byte) *Node {
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil
	}
	return convertNode(root)
}

// convertNode converts a tree-sitter node into our Node type.
func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		child := tsNode.Child(int(i))
		if child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}

	return node
}
