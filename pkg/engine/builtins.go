package engine

import "github.com/aretw0/conductor/pkg/domain"

// RegisterBuiltins registers the content handlers every document can use:
// map, list, text, int, function, null, true and false.
func RegisterBuiltins(reg *Registry) error {
	builtins := map[string]Function{
		"map":      mapFunc,
		"list":     listFunc,
		"text":     textFunc,
		"int":      intFunc,
		"function": functionFunc,
		"null":     constant(nil),
		"true":     constant(true),
		"false":    constant(false),
	}
	for name, fn := range builtins {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// mapFunc builds a map from the named children, each folded as content.
func mapFunc(call *Call) (any, error) {
	out := make(map[string]any, len(call.Node.Children))
	for _, item := range call.Node.Children {
		key, _ := item.Attr("name")
		v, err := call.Engine.EvaluateContent(item, call.Context)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func listFunc(call *Call) (any, error) {
	out := make([]any, 0, len(call.Node.Children))
	for _, item := range call.Node.Children {
		v, err := call.Engine.Evaluate(item, call.Context)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func textFunc(call *Call) (any, error) {
	v, err := call.Content()
	if err != nil {
		return nil, err
	}
	return domain.Stringify(v), nil
}

func intFunc(call *Call) (any, error) {
	v, err := call.Content()
	if err != nil {
		return nil, err
	}
	return domain.ToInt(v)
}

// functionFunc captures the element and its scope without evaluating anything.
func functionFunc(call *Call) (any, error) {
	return Deferred(call.Content), nil
}

func constant(v any) Function {
	return func(*Call) (any, error) {
		return v, nil
	}
}
