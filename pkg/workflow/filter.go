package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// currentVar is the variable a filter's '@' is bound to.
const currentVar = "__current"

const (
	fnPath   = "path"
	fnTruthy = "truthy"
)

// Filter is a compiled predicate used by '[?(...)]' query steps.
//
// The expression language is expr with a few conveniences: '@' is the candidate
// value, '@.a.b' (or "@['a']") looks the dotted path up in the candidate and yields
// nil when it is missing, None/True/False and 'is'/'is not' are accepted, and the
// operands of and/or/not are coerced to booleans by truthiness.
type Filter struct {
	source  string
	program *vm.Program
}

var filterCache sync.Map

// CompileFilter compiles a filter expression. Compiled filters are cached.
func CompileFilter(src string) (*Filter, error) {
	if f, ok := filterCache.Load(src); ok {
		return f.(*Filter), nil
	}
	program, err := expr.Compile(translateFilter(src),
		expr.AllowUndefinedVariables(),
		expr.Function(fnPath, pathFunc, new(func(any, string) any)),
		expr.Function(fnTruthy, truthyFunc, new(func(any) bool)),
		expr.Patch(&candidatePatcher{}),
	)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	f := &Filter{source: src, program: program}
	filterCache.Store(src, f)
	return f, nil
}

// Match evaluates the filter against candidate. Evaluation errors count as no match.
func (f *Filter) Match(candidate any) bool {
	out, err := expr.Run(f.program, map[string]any{currentVar: candidate})
	if err != nil {
		return false
	}
	return domain.Truthy(out)
}

func (f *Filter) String() string { return f.source }

func pathFunc(params ...any) (any, error) {
	key, _ := params[1].(string)
	v, err := GetPath(params[0], strings.Split(key, "."), false)
	if err != nil {
		return nil, nil
	}
	return v, nil
}

func truthyFunc(params ...any) (any, error) {
	return domain.Truthy(params[0]), nil
}

// translateFilter maps the Python-flavoured tokens used by workflow documents onto
// expr syntax. Quoted strings are copied untouched.
func translateFilter(src string) string {
	var b strings.Builder
	var prev byte
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(src) {
				j++
			}
			b.WriteString(src[i:j])
			i = j
			prev = c
		case c == '@':
			b.WriteString(currentVar)
			i++
			prev = c
		case isWordStart(c):
			j := i
			for j < len(src) && isWordPart(src[j]) {
				j++
			}
			word := src[i:j]
			i = j
			if prev == '.' {
				b.WriteString(word)
				prev = 'a'
				continue
			}
			switch word {
			case "None":
				word = "nil"
			case "True":
				word = "true"
			case "False":
				word = "false"
			case "is":
				k := i
				for k < len(src) && src[k] == ' ' {
					k++
				}
				if strings.HasPrefix(src[k:], "not") && (k+3 == len(src) || !isWordPart(src[k+3])) {
					word = "!="
					i = k + 3
				} else {
					word = "=="
				}
			}
			b.WriteString(word)
			prev = 'a'
		default:
			b.WriteByte(c)
			i++
			if c != ' ' && c != '\t' && c != '\n' {
				prev = c
			}
		}
	}
	return b.String()
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9'
}

// candidatePatcher rewrites member chains rooted at the candidate into path()
// calls and coerces boolean operands. Walk visits children first, so a chain
// a.b.c arrives as nested member nodes from the innermost outwards.
type candidatePatcher struct{}

func (p *candidatePatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.MemberNode:
		if n.Method || n.Optional {
			return
		}
		key, ok := propertyKey(n.Property)
		if !ok {
			return
		}
		if id, ok := n.Node.(*ast.IdentifierNode); ok && id.Value == currentVar {
			ast.Patch(node, pathCall(key))
			return
		}
		if prefix, ok := candidatePath(n.Node); ok {
			ast.Patch(node, pathCall(prefix+"."+key))
		}
	case *ast.BinaryNode:
		switch n.Operator {
		case "and", "&&", "or", "||":
			n.Left = truthyCall(n.Left)
			n.Right = truthyCall(n.Right)
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "not", "!":
			n.Node = truthyCall(n.Node)
		}
	}
}

func propertyKey(prop ast.Node) (string, bool) {
	switch p := prop.(type) {
	case *ast.StringNode:
		return p.Value, true
	case *ast.IntegerNode:
		return strconv.Itoa(p.Value), true
	}
	return "", false
}

// candidatePath recognizes a path() call produced by an earlier visit.
func candidatePath(n ast.Node) (string, bool) {
	call, ok := n.(*ast.CallNode)
	if !ok || len(call.Arguments) != 2 {
		return "", false
	}
	if callee, ok := call.Callee.(*ast.IdentifierNode); !ok || callee.Value != fnPath {
		return "", false
	}
	if id, ok := call.Arguments[0].(*ast.IdentifierNode); !ok || id.Value != currentVar {
		return "", false
	}
	key, ok := call.Arguments[1].(*ast.StringNode)
	if !ok {
		return "", false
	}
	return key.Value, true
}

func pathCall(key string) ast.Node {
	return &ast.CallNode{
		Callee: &ast.IdentifierNode{Value: fnPath},
		Arguments: []ast.Node{
			&ast.IdentifierNode{Value: currentVar},
			&ast.StringNode{Value: key},
		},
	}
}

func truthyCall(n ast.Node) ast.Node {
	if call, ok := n.(*ast.CallNode); ok {
		if callee, ok := call.Callee.(*ast.IdentifierNode); ok && callee.Value == fnTruthy {
			return n
		}
	}
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: fnTruthy},
		Arguments: []ast.Node{n},
	}
}
