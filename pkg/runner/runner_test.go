package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/reporting"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pingChannel completes every queued command with "pong", or fails the flush.
type pingChannel struct {
	queue dispatch.Queue
	fail  error
}

func (c *pingChannel) Name() string { return "ping" }

func (c *pingChannel) Execute(cmd *domain.Command) error {
	c.queue.Push(cmd)
	return nil
}

func (c *pingChannel) HasPending() bool { return c.queue.Len() > 0 }

func (c *pingChannel) Flush(ctx context.Context) ([]domain.Completion, error) {
	cmds := c.queue.Take()
	if c.fail != nil {
		return nil, c.fail
	}
	return dispatch.Complete(cmds, "pong"), nil
}

func (c *pingChannel) Close() error { return nil }

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workflow.Register(reg))
	require.NoError(t, reporting.Register(reg))
	require.NoError(t, reg.Register("ping", func(call *engine.Call) (any, error) {
		d, err := dispatch.From(call.Context)
		if err != nil {
			return nil, err
		}
		_, err = d.Execute("ping", "Ping", nil, dispatch.OnSuccess(call, "#reply"))
		return nil, err
	}))
	return reg
}

func loadEngines(t *testing.T, reg *engine.Registry, docs ...string) []*engine.Engine {
	t.Helper()
	var engines []*engine.Engine
	for i, src := range docs {
		doc, err := engine.ParseString(src, "doc"+string(rune('a'+i))+".xml")
		require.NoError(t, err)
		e := engine.New(reg)
		e.Use(doc)
		engines = append(engines, e)
	}
	return engines
}

type recorder struct {
	mu       sync.Mutex
	passes   []bool
	drains   []bool
	commands int
	outcome  string
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPass: func(_ context.Context, e *domain.PassEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.passes = append(r.passes, e.Changed)
		},
		OnDrain: func(_ context.Context, e *domain.DrainEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.drains = append(r.drains, e.Drained)
		},
		OnCommand: func(context.Context, *domain.CommandEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.commands++
		},
		OnTaskFinish: func(_ context.Context, e *domain.TaskEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.outcome = e.Outcome
		},
	}
}

func TestRunner_GuardedRuleTerminatesAfterOnePass(t *testing.T) {
	broker := memory.NewBroker()
	rec := &recorder{}
	engines := loadEngines(t, newRegistry(t), `
<workflow>
	<rule match="$[?(@.value != 1)]">
		<set path="value"><int>1</int></set>
	</rule>
</workflow>`)
	r := runner.New(engines, broker, runner.WithLifecycleHooks(rec.hooks()))

	task := domain.NewTask("msg-1", map[string]any{"id": "t1", "token": "secret", "value": 0.0})
	require.NoError(t, r.Process(context.Background(), task))

	result, err := broker.Receive(context.Background(), domain.QueueResults, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", result.ID)
	assert.NotContains(t, result.Body, "token")
	assert.Equal(t, "t1", result.Body["id"])
	assert.True(t, domain.Equal(1, result.Body["value"]))
	assert.Len(t, result.Body, 2)

	assert.Equal(t, []bool{true, false}, rec.passes, "one changing pass, one confirming pass")
	assert.Equal(t, []bool{false}, rec.drains)
	assert.Equal(t, domain.OutcomeSucceeded, rec.outcome)
}

func TestRunner_AllWorkflowsRunEveryPass(t *testing.T) {
	broker := memory.NewBroker()
	engines := loadEngines(t, newRegistry(t),
		`<workflow><rule match="$[?(@.step == 1)]"><set path="step"><int>2</int></set></rule></workflow>`,
		`<workflow><rule match="$[?(@.step == 0)]"><set path="step"><int>1</int></set></rule></workflow>`,
	)
	r := runner.New(engines, broker)

	task := domain.NewTask("m", map[string]any{"id": "t", "step": 0})
	require.NoError(t, r.Process(context.Background(), task))
	assert.True(t, domain.Equal(2, task.Data["step"]))
}

func TestRunner_DrainsUntilNothingIsPending(t *testing.T) {
	broker := memory.NewBroker()
	rec := &recorder{}
	engines := loadEngines(t, newRegistry(t), `
<workflow>
	<rule match="$.units[?(@.requested is not True)]">
		<set path="requested"><true/></set>
		<ping>
			<success>
				<set path="answer"><select path="#reply"/></set>
			</success>
		</ping>
	</rule>
</workflow>`)
	ch := &pingChannel{}
	r := runner.New(engines, broker,
		runner.WithChannels(func(*domain.Task) ([]dispatch.Channel, error) { return []dispatch.Channel{ch}, nil }),
		runner.WithLifecycleHooks(rec.hooks()),
	)

	task := domain.NewTask("m", map[string]any{"id": "t", "units": []any{
		map[string]any{"name": "a"},
		map[string]any{"name": "b"},
	}})
	require.NoError(t, r.Process(context.Background(), task))

	for _, u := range task.Data["units"].([]any) {
		assert.Equal(t, "pong", u.(map[string]any)["answer"])
	}
	assert.Equal(t, []bool{true, false}, rec.drains)
	assert.Equal(t, 2, rec.commands)
}

func TestRunner_NoFixedPoint(t *testing.T) {
	broker := memory.NewBroker()
	rec := &recorder{}
	engines := loadEngines(t, newRegistry(t), `
<workflow>
	<rule match="$[?(@.x == 1)]"><set path="x"><int>2</int></set></rule>
	<rule match="$[?(@.x == 2)]"><set path="x"><int>1</int></set></rule>
</workflow>`)
	r := runner.New(engines, broker, runner.WithMaxPasses(5), runner.WithLifecycleHooks(rec.hooks()))

	err := r.Process(context.Background(), domain.NewTask("m", map[string]any{"id": "t", "x": 1}))
	assert.ErrorIs(t, err, domain.ErrNoFixedPoint)
	assert.Len(t, rec.passes, 5)
	assert.Equal(t, 0, broker.Len(domain.QueueResults), "an aborted task has no result")
	assert.Equal(t, domain.OutcomeFailed, rec.outcome)
}

func TestRunner_DocumentErrorAborts(t *testing.T) {
	broker := memory.NewBroker()
	engines := loadEngines(t, newRegistry(t), `<workflow><rule match="$"><explode/></rule></workflow>`)
	r := runner.New(engines, broker)

	err := r.Process(context.Background(), domain.NewTask("m", map[string]any{"id": "t"}))
	var unknown *domain.UnknownFunctionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "explode", unknown.Name)
	assert.Equal(t, 0, broker.Len(domain.QueueResults))
}

func TestRunner_ExternalFailureAborts(t *testing.T) {
	broker := memory.NewBroker()
	rec := &recorder{}
	engines := loadEngines(t, newRegistry(t), `<workflow><rule match="$[?(@.sent is not True)]"><set path="sent"><true/></set><ping/></rule></workflow>`)
	ch := &pingChannel{fail: errors.New("rejected")}
	r := runner.New(engines, broker,
		runner.WithChannels(func(*domain.Task) ([]dispatch.Channel, error) { return []dispatch.Channel{ch}, nil }),
		runner.WithLifecycleHooks(rec.hooks()),
	)

	err := r.Process(context.Background(), domain.NewTask("m", map[string]any{"id": "t", "token": "x"}))
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
	assert.Equal(t, domain.OutcomeExternal, rec.outcome)
	assert.Equal(t, 0, broker.Len(domain.QueueResults))
}

func TestRunner_ReportsAndConfig(t *testing.T) {
	broker := memory.NewBroker()
	engines := loadEngines(t, newRegistry(t), `
<workflow>
	<rule match="$[?(@.region is None)]">
		<set path="region"><select path="##stack.region"/></set>
		<report entity="environment">deploying</report>
	</rule>
</workflow>`)
	r := runner.New(engines, broker,
		runner.WithConfig(staticConfig{"stack.region": "north"}),
		runner.WithQueues("results", "reports"),
	)

	task := domain.NewTask("m", map[string]any{"id": "env-1"})
	require.NoError(t, r.Process(context.Background(), task))
	assert.Equal(t, "north", task.Data["region"])

	report, err := broker.Receive(context.Background(), "reports", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "m", report.ID)
	assert.Equal(t, "deploying", report.Body["text"])
	assert.Equal(t, "env-1", report.Body["environment_id"])
	assert.Equal(t, 1, broker.Len("results"))
}

func TestRunner_ChannelFactoryError(t *testing.T) {
	r := runner.New(nil, memory.NewBroker(), runner.WithChannels(func(*domain.Task) ([]dispatch.Channel, error) {
		return nil, errors.New("no credentials")
	}))
	err := r.Process(context.Background(), domain.NewTask("m", map[string]any{"id": "t"}))
	assert.ErrorContains(t, err, "no credentials")
}

type staticConfig map[string]any

func (c staticConfig) Lookup(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}
