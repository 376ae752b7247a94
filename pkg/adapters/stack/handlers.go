package stack

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/engine"
)

// Element names served by this package.
const (
	TagUpdateStack      = "update-stack"
	TagDeleteStack      = "delete-stack"
	TagGenerateHostname = "generate-hostname"
)

// Register adds the stack handlers to reg.
func Register(reg *engine.Registry) error {
	for name, fn := range map[string]engine.Function{
		TagUpdateStack:      updateStackFunc,
		TagDeleteStack:      deleteStackFunc,
		TagGenerateHostname: generateHostnameFunc,
	} {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

type updateArgs struct {
	Template  string         `arg:"template"`
	Mappings  map[string]any `arg:"mappings"`
	Arguments map[string]any `arg:"arguments"`
}

func updateStackFunc(call *engine.Call) (any, error) {
	var args updateArgs
	if err := call.Args.Decode(&args); err != nil {
		return nil, fmt.Errorf("%s: %w", TagUpdateStack, err)
	}
	d, err := dispatch.From(call.Context)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		PayloadTemplate:  args.Template,
		PayloadMappings:  args.Mappings,
		PayloadArguments: args.Arguments,
	}
	_, err = d.Execute(ChannelName, CommandCreateOrUpdate, payload, dispatch.OnSuccess(call, ""))
	return nil, err
}

func deleteStackFunc(call *engine.Call) (any, error) {
	d, err := dispatch.From(call.Context)
	if err != nil {
		return nil, err
	}
	_, err = d.Execute(ChannelName, CommandDelete, nil, dispatch.OnSuccess(call, ""))
	return nil, err
}

const letters = "abcdefghijklmnopqrstuvwxyz"

var hostnames struct {
	mu      sync.Mutex
	counter int64
}

// GenerateHostname returns five random lowercase letters, the first eight base-36
// digits of the millisecond clock and a process-wide counter in base 36.
// The counter wraps at 1296 so the suffix never exceeds two digits.
func GenerateHostname() string {
	hostnames.mu.Lock()
	counter := hostnames.counter
	hostnames.counter = (hostnames.counter + 1) % 1296
	hostnames.mu.Unlock()

	prefix := make([]byte, 5)
	for i := range prefix {
		prefix[i] = letters[rand.IntN(len(letters))]
	}

	stamp := strconv.FormatInt(time.Now().UnixMilli(), 36)
	if len(stamp) > 8 {
		stamp = stamp[:8]
	}
	return string(prefix) + stamp + strconv.FormatInt(counter, 36)
}

func generateHostnameFunc(*engine.Call) (any, error) {
	return GenerateHostname(), nil
}
