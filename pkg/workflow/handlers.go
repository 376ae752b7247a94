package workflow

import (
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
)

// Well-known context keys.
const (
	KeyDataSource    = "dataSource"
	KeyPosition      = "dataSource_currentPosition"
	KeyCurrentObject = "dataSource_currentObj"
	KeySideEffects   = "hasSideEffects"
	KeyDispatcher    = "commandDispatcher"
	KeyConfig        = "config"
	KeyReporter      = "reporter"
)

// Element names with a structural meaning inside rules.
const (
	TagWorkflow = "workflow"
	TagRule     = "rule"
	TagSelect   = "select"
	TagSet      = "set"
	TagEmpty    = "empty"
)

// ConfigSource serves the read-only '##' lookups.
type ConfigSource interface {
	Lookup(key string) (any, bool)
}

// Register adds the workflow, rule, select and set handlers to reg.
func Register(reg *engine.Registry) error {
	for name, fn := range map[string]engine.Function{
		TagWorkflow: workflowFunc,
		TagRule:     ruleFunc,
		TagSelect:   selectFunc,
		TagSet:      setFunc,
	} {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// DataSource returns the task data bound to the pass.
func DataSource(ctx *engine.PathContext) any {
	return ctx.Get("/" + KeyDataSource)
}

// Position returns the address the innermost enclosing rule is looking at.
func Position(ctx *engine.PathContext) Address {
	v, _ := ctx.Lookup(KeyPosition)
	switch p := v.(type) {
	case Address:
		return p
	case []string:
		return p
	}
	return nil
}

// CurrentObject returns the value at Position, or the whole task data outside rules.
func CurrentObject(ctx *engine.PathContext) any {
	if v, ok := ctx.Lookup(KeyCurrentObject); ok {
		return v
	}
	return DataSource(ctx)
}

// Config returns the configuration bound to the pass, or nil.
func Config(ctx *engine.PathContext) ConfigSource {
	cfg, _ := ctx.Get("/" + KeyConfig).(ConfigSource)
	return cfg
}

// HasSideEffects reports whether a set changed the data since the flag was reset.
func HasSideEffects(ctx *engine.PathContext) bool {
	return domain.Truthy(ctx.Get("/" + KeySideEffects))
}

// Variable reads a context variable. A prefixed key is resolved exactly like
// PathContext.Get; a plain key missing from ctx is taken from the nearest enclosing
// scope that holds it, which is where '#name' writes of earlier siblings land.
func Variable(ctx *engine.PathContext, key string) any {
	if v, ok := ctx.GetOK(key); ok {
		return v
	}
	if key == "" || key[0] == ':' || key[0] == '/' {
		return nil
	}
	v, _ := ctx.Lookup(key)
	return v
}

// Pin copies the current position and object into ctx itself, so that a callback
// evaluated later in ctx still sees the match that was current when it was queued.
func Pin(ctx *engine.PathContext) {
	ctx.Set(KeyPosition, Position(ctx))
	ctx.Set(KeyCurrentObject, CurrentObject(ctx))
}

func workflowFunc(call *engine.Call) (any, error) {
	call.Context.Set("/"+KeySideEffects, false)
	for _, child := range call.Node.Children {
		if _, err := call.Engine.Evaluate(child, call.Context); err != nil {
			return nil, err
		}
		if child.Tag == TagRule && HasSideEffects(call.Context) {
			return true, nil
		}
	}
	return false, nil
}

type ruleArgs struct {
	Match string `arg:"match"`
	Limit int    `arg:"limit"`
	Name  string `arg:"name"`
}

func ruleFunc(call *engine.Call) (any, error) {
	var args ruleArgs
	if err := call.Args.Decode(&args); err != nil {
		return nil, fmt.Errorf("rule %q: %w", args.Name, err)
	}
	ctx := call.Context

	position, match := relativePosition(args.Match, Position(ctx))
	data := DataSource(ctx)
	base, err := GetPath(data, position, false)
	if err != nil {
		return nil, err
	}
	query, err := CompileQuery(wrapRoot(match))
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", args.Name, err)
	}

	visited := 0
	for _, found := range query.Select([]any{base}) {
		if args.Limit > 0 && visited >= args.Limit {
			break
		}
		visited++

		addr := append(append(Address{}, position...), dropWrapper(found)...)
		obj, err := GetPath(data, addr, false)
		if err != nil {
			return nil, err
		}
		ctx.Set(KeyPosition, addr)
		ctx.Set(KeyCurrentObject, obj)

		stop := false
		for _, child := range call.Node.Children {
			if child.Tag == TagEmpty {
				continue
			}
			if _, err := call.Engine.Evaluate(child, ctx); err != nil {
				return nil, err
			}
			if child.Tag == TagRule && HasSideEffects(ctx) {
				stop = true
				break
			}
		}
		if stop {
			break
		}
	}

	if visited == 0 {
		if empty := call.Node.Find(TagEmpty); empty != nil {
			if _, err := call.Engine.EvaluateContent(empty, ctx); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// wrapRoot turns every '$.' outside quotes into '$[*].'. Rules query a one-element
// list holding the base object, so '$.x' reaches into the base object while
// '$[?(...)]' tests the base object itself.
func wrapRoot(match string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(match); i++ {
		c := match[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '$' && i+1 < len(match) && match[i+1] == '.':
			b.WriteString("$[*]")
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func dropWrapper(found Address) Address {
	if len(found) == 0 {
		return nil
	}
	return found[1:]
}

func selectFunc(call *engine.Call) (any, error) {
	path := call.Args.String("path", "")
	ctx := call.Context

	switch {
	case strings.HasPrefix(path, "##"):
		cfg := Config(ctx)
		if cfg == nil {
			return nil, nil
		}
		v, _ := cfg.Lookup(path[2:])
		return v, nil
	case strings.HasPrefix(path, "#"):
		return Variable(ctx, path[1:]), nil
	}

	if source, ok := call.Args.Value("source"); ok {
		return GetPath(Variable(ctx, domain.Stringify(source)), strings.Split(path, "."), false)
	}
	return GetPath(DataSource(ctx), resolvePosition(path, Position(ctx)), false)
}

func setFunc(call *engine.Call) (any, error) {
	value, err := call.Content()
	if err != nil {
		return nil, err
	}
	path := call.Args.String("path", "")
	ctx := call.Context

	switch {
	case strings.HasPrefix(path, "##"):
		return nil, fmt.Errorf("%w: set %q", domain.ErrReadOnlyConfig, path)
	case strings.HasPrefix(path, "#"):
		ctx.Set(":"+path[1:], value)
		return nil, nil
	}

	var (
		data any
		addr Address
	)
	if target := call.Args.String("target", ""); target != "" {
		data = Variable(ctx, target)
		addr = strings.Split(path, ".")
	} else {
		data = DataSource(ctx)
		addr = resolvePosition(path, Position(ctx))
	}

	current, err := GetPath(data, addr, false)
	if err != nil {
		return nil, err
	}
	if domain.Equal(current, value) {
		return nil, nil
	}
	if err := SetPath(data, addr, domain.Clone(value)); err != nil {
		return nil, err
	}
	ctx.Set("/"+KeySideEffects, true)
	return nil, nil
}
