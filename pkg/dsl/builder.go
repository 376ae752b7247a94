package dsl

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
)

// Builder manages the document construction.
type Builder struct {
	source string
	root   *NodeBuilder
}

// New creates a document builder. source labels the document in errors and logs.
func New(source string) *Builder {
	return &Builder{source: source}
}

// Root sets the root element.
func (b *Builder) Root(root *NodeBuilder) *Builder {
	b.root = root
	return b
}

// Build checks the tree and returns it as a document.
func (b *Builder) Build() (*engine.Document, error) {
	if b.root == nil || b.root.node == nil {
		return nil, &domain.DocumentLoadError{Source: b.source, Err: errors.New("no root element")}
	}
	if err := check(b.root.node); err != nil {
		return nil, &domain.DocumentLoadError{Source: b.source, Err: err}
	}
	return &engine.Document{Source: b.source, Root: b.root.node}, nil
}

func check(n *domain.Node) error {
	if n.Tag == "" || strings.ContainsAny(n.Tag, " <>/\"'") {
		return fmt.Errorf("invalid element name %q", n.Tag)
	}
	for _, c := range n.Children {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders a document as XML that the loader parses back to the same tree.
func Marshal(w io.Writer, doc *engine.Document) error {
	enc := xml.NewEncoder(w)
	if err := encode(enc, doc.Root); err != nil {
		return err
	}
	return enc.Flush()
}

func encode(enc *xml.Encoder, n *domain.Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Tag}}
	for _, a := range n.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encode(enc, c); err != nil {
			return err
		}
		if c.Tail != "" {
			if err := enc.EncodeToken(xml.CharData(c.Tail)); err != nil {
				return err
			}
		}
	}
	return enc.EncodeToken(start.End())
}
