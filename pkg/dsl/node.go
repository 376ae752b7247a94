package dsl

import (
	"strconv"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
)

// NodeBuilder provides a fluent API for configuring an element.
type NodeBuilder struct {
	node *domain.Node
	text string // pending character data, see Text
}

// Element starts an element with the given tag.
func Element(tag string, children ...*NodeBuilder) *NodeBuilder {
	n := &NodeBuilder{node: &domain.Node{Tag: tag}}
	return n.Append(children...)
}

// Text creates a character data fragment. Appended to an element it lands
// between the surrounding children, exactly where it would be in XML.
func Text(s string) *NodeBuilder {
	return &NodeBuilder{text: s}
}

// Attr sets an attribute. Setting it again replaces the value in place.
func (n *NodeBuilder) Attr(name, value string) *NodeBuilder {
	for i, a := range n.node.Attrs {
		if a.Name == name {
			n.node.Attrs[i].Value = value
			return n
		}
	}
	n.node.Attrs = append(n.node.Attrs, domain.Attr{Name: name, Value: value})
	return n
}

// Append adds children and text fragments in order.
func (n *NodeBuilder) Append(children ...*NodeBuilder) *NodeBuilder {
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.node == nil {
			if len(n.node.Children) == 0 {
				n.node.Text += c.text
			} else {
				n.node.Children[len(n.node.Children)-1].Tail += c.text
			}
			continue
		}
		n.node.Children = append(n.node.Children, c.node)
	}
	return n
}

// Param adds a parameter child evaluated into the argument name.
func (n *NodeBuilder) Param(name string, value ...*NodeBuilder) *NodeBuilder {
	return n.Append(Element(engine.TagParameter, value...).Attr("name", name))
}

// Build returns the underlying element. Text fragments have no element and
// build to nil.
func (n *NodeBuilder) Build() *domain.Node {
	return n.node
}

// Workflow is the root element running its children in order.
func Workflow(children ...*NodeBuilder) *NodeBuilder {
	return Element("workflow", children...)
}

// Rule runs its children once per match of the JSONPath query.
func Rule(match string, children ...*NodeBuilder) *NodeBuilder {
	return Element("rule", children...).Attr("match", match)
}

// Empty holds the children a rule evaluates when nothing matches.
func Empty(children ...*NodeBuilder) *NodeBuilder {
	return Element("empty", children...)
}

// Select reads the value at path.
func Select(path string) *NodeBuilder {
	return Element("select").Attr("path", path)
}

// Set writes its folded content to path.
func Set(path string, value ...*NodeBuilder) *NodeBuilder {
	return Element("set", value...).Attr("path", path)
}

// Int is an integer literal.
func Int(v int) *NodeBuilder {
	return Element("int", Text(strconv.Itoa(v)))
}

// Bool is a boolean literal.
func Bool(v bool) *NodeBuilder {
	return Element(strconv.FormatBool(v))
}

// Null is the nil literal.
func Null() *NodeBuilder {
	return Element("null")
}

// Map builds a map from name/value pairs given as Item elements.
func Map(items ...*NodeBuilder) *NodeBuilder {
	return Element("map", items...)
}

// Item is one named entry of a Map.
func Item(name string, value ...*NodeBuilder) *NodeBuilder {
	return Element("item", value...).Attr("name", name)
}

// List builds a list from its children.
func List(items ...*NodeBuilder) *NodeBuilder {
	return Element("list", items...)
}

// Report emits a progress report for the current object.
func Report(entity, text string) *NodeBuilder {
	return Element("report", Text(text)).Attr("entity", entity)
}
