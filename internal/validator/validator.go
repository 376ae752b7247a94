// Package validator checks loaded workflow documents before any task runs.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Resolver reports whether an element name has a handler.
type Resolver interface {
	Has(name string) bool
}

// Finding is one problem found in a document.
type Finding struct {
	Source string
	Path   string // slash-separated element path, e.g. workflow/rule[2]/set
	Err    error
}

func (f Finding) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Source, f.Path, f.Err)
}

func (f Finding) Unwrap() error { return f.Err }

// structural elements are consumed by their parent and never resolved.
var structural = map[string]bool{
	engine.TagParameter: true,
	dispatch.TagSuccess: true,
	workflow.TagEmpty:   true,
}

// named containers hold entries whose tag is irrelevant.
var containers = map[string]bool{"map": true}

type item struct {
	node  *domain.Node
	path  string
	entry bool
}

// ValidateDocument crawls the element tree and reports every element without a
// handler and every rule whose match query does not compile.
func ValidateDocument(doc *engine.Document, reg Resolver) []Finding {
	var findings []Finding
	queue := []item{{node: doc.Root, path: doc.Root.Tag}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		n := current.node

		if !current.entry && !structural[n.Tag] && !reg.Has(n.Tag) {
			findings = append(findings, Finding{
				Source: doc.Source,
				Path:   current.path,
				Err:    &domain.UnknownFunctionError{Name: n.Tag},
			})
		}
		if n.Tag == workflow.TagRule {
			if err := checkMatch(n); err != nil {
				findings = append(findings, Finding{Source: doc.Source, Path: current.path, Err: err})
			}
		}

		seen := map[string]int{}
		for _, c := range n.Children {
			seen[c.Tag]++
			path := current.path + "/" + c.Tag
			if seen[c.Tag] > 1 {
				path = fmt.Sprintf("%s[%d]", path, seen[c.Tag])
			}
			queue = append(queue, item{node: c, path: path, entry: containers[n.Tag]})
		}
	}
	return findings
}

func checkMatch(rule *domain.Node) error {
	match, ok := rule.Attr("match")
	if !ok {
		return fmt.Errorf("%w: rule without match", domain.ErrInvalidValue)
	}
	if _, err := workflow.CompileQuery(strings.TrimLeft(match, ":/")); err != nil {
		return fmt.Errorf("%w: match %q: %v", domain.ErrInvalidValue, match, err)
	}
	return nil
}
