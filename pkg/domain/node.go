package domain

// Attr is one attribute of a document element, kept in document order.
type Attr struct {
	Name  string
	Value string
}

// Node is an element of a parsed workflow document. Text holds the character data
// before the first child and Tail the character data following this element inside
// its parent. Nodes are never mutated after parsing.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Tail     string
	Children []*Node
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Find returns the first direct child with the given tag, or nil.
func (n *Node) Find(tag string) *Node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child with the given tag.
func (n *Node) FindAll(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}
