package engine

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// Document is a parsed workflow document.
type Document struct {
	Source string
	Root   *domain.Node
}

// Parse reads an XML document from r. Comments, processing instructions and
// directives are dropped; character data around them is kept.
func Parse(r io.Reader, source string) (*Document, error) {
	dec := xml.NewDecoder(r)

	var (
		root  *domain.Node
		stack []*domain.Node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.DocumentLoadError{Source: source, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &domain.Node{Tag: t.Name.Local}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, domain.Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &domain.DocumentLoadError{Source: source, Err: errors.New("multiple root elements")}
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, &domain.DocumentLoadError{Source: source, Err: errors.New("text outside of root element")}
				}
				continue
			}
			top := stack[len(stack)-1]
			if n := len(top.Children); n > 0 {
				top.Children[n-1].Tail += string(t)
			} else {
				top.Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, &domain.DocumentLoadError{Source: source, Err: errors.New("no root element")}
	}
	return &Document{Source: source, Root: root}, nil
}

// ParseString parses a document held in memory.
func ParseString(doc string, source string) (*Document, error) {
	return Parse(strings.NewReader(doc), source)
}

// ParseFile parses the document stored at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.DocumentLoadError{Source: path, Err: err}
	}
	defer f.Close()
	return Parse(f, path)
}
