package agent_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/conductor/internal/testutils"
	"github.com/aretw0/conductor/pkg/adapters/agent"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplates(t *testing.T) *memory.Templates {
	t.Helper()
	store, err := memory.NewTemplatesFromJSON(map[string]string{
		"agent/Deploy": `{"Scripts": ["$script"], "Parameters": {"Name": "$name"}}`,
	})
	require.NoError(t, err)
	store.SetText(agent.UserDataChannel, agent.UserDataScript, "hostname %INTERNAL_HOSTNAME%\nconfig %AGENT_CONFIG_BASE64%\n")
	store.SetText(agent.AgentConfigChannel, "Default", "host=%BROKER_HOST% in=%INPUT_QUEUE% out=%RESULT_QUEUE% user=%BROKER_USER%")
	return store
}

// fakeAgent answers every plan received on queue, recording what it saw.
func fakeAgent(ctx context.Context, t *testing.T, broker ports.Broker, stack, queue string, seen chan<- domain.Message) {
	go func() {
		for {
			msg, err := broker.Receive(ctx, queue, 0)
			if err != nil {
				return
			}
			seen <- *msg
			reply := domain.Message{ID: msg.ID, Body: map[string]any{"status": "ok", "queue": queue}}
			if err := broker.Publish(ctx, agent.ResultQueue(stack), reply); err != nil {
				t.Errorf("publish reply: %v", err)
				return
			}
		}
	}()
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "env-web-unit0", agent.InputQueue("Env", "Web", "Unit0"))
	assert.Equal(t, "env-execution-results", agent.ResultQueue("Env"))
}

func TestChannel_SendsAndCorrelates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := memory.NewBroker()
	seen := make(chan domain.Message, 4)
	fakeAgent(ctx, t, broker, "Env", "env-web-0", seen)
	fakeAgent(ctx, t, broker, "Env", "env-web-1", seen)

	ch := agent.NewChannel("Env", broker, newTemplates(t), agent.WithResultTimeout(5*time.Second))
	first := &domain.Command{ID: "c1", Name: agent.CommandSend, Payload: map[string]any{
		agent.PayloadTemplate: "Deploy",
		agent.PayloadService:  "web",
		agent.PayloadUnit:     "0",
		agent.PayloadMappings: map[string]any{"script": "install.sh", "name": "web-0"},
	}}
	second := &domain.Command{ID: "c2", Name: agent.CommandSend, Payload: map[string]any{
		agent.PayloadTemplate: "Deploy",
		agent.PayloadService:  "web",
		agent.PayloadUnit:     "1",
	}}
	require.NoError(t, ch.Execute(first))
	require.NoError(t, ch.Execute(second))
	assert.True(t, ch.HasPending())

	completions, err := ch.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, completions, 2)
	assert.Same(t, first, completions[0].Command)
	assert.Same(t, second, completions[1].Command)
	assert.Equal(t, "env-web-0", completions[0].Result.(map[string]any)["queue"])
	assert.Equal(t, "env-web-1", completions[1].Result.(map[string]any)["queue"])
	assert.False(t, ch.HasPending())

	plans := map[string]domain.Message{}
	for range 2 {
		msg := <-seen
		plans[msg.ID] = msg
	}
	assert.Equal(t, []any{"install.sh"}, plans["c1"].Body["Scripts"])
	assert.Equal(t, []any{"$script"}, plans["c2"].Body["Scripts"], "unmapped sentinels are left alone")
}

func sendDeploy(t *testing.T, ch *agent.Channel, id, service string) *domain.Command {
	t.Helper()
	cmd := &domain.Command{ID: id, Name: agent.CommandSend, Payload: map[string]any{
		agent.PayloadTemplate: "Deploy", agent.PayloadService: service, agent.PayloadUnit: "0",
	}}
	require.NoError(t, ch.Execute(cmd))
	return cmd
}

type flushResult struct {
	completions []domain.Completion
	err         error
}

func flushAsync(ctx context.Context, ch *agent.Channel) <-chan flushResult {
	done := make(chan flushResult, 1)
	go func() {
		completions, err := ch.Flush(ctx)
		done <- flushResult{completions, err}
	}()
	return done
}

func TestChannel_SharedResultQueue(t *testing.T) {
	ctx := context.Background()
	broker := memory.NewBroker()
	opts := []agent.Option{agent.WithResultTimeout(5 * time.Second), agent.WithRequeueDelay(10 * time.Millisecond)}

	// Two tasks of the same stack wait on the same result queue.
	first := agent.NewChannel("env", broker, newTemplates(t), opts...)
	second := agent.NewChannel("env", broker, newTemplates(t), opts...)
	sendDeploy(t, first, "task-a-cmd", "web")
	sendDeploy(t, second, "task-b-cmd", "db")

	firstDone := flushAsync(ctx, first)
	_, err := broker.Receive(ctx, "env-web-0", 2*time.Second)
	require.NoError(t, err)

	// The second task's reply arrives while only the first task is waiting.
	require.NoError(t, broker.Publish(ctx, agent.ResultQueue("env"), domain.Message{ID: "task-b-cmd", Body: map[string]any{"task": "b"}}))
	time.Sleep(50 * time.Millisecond)

	secondDone := flushAsync(ctx, second)
	_, err = broker.Receive(ctx, "env-db-0", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, agent.ResultQueue("env"), domain.Message{ID: "task-a-cmd", Body: map[string]any{"task": "a"}}))

	for _, tc := range []struct {
		done <-chan flushResult
		want string
	}{{firstDone, "a"}, {secondDone, "b"}} {
		select {
		case res := <-tc.done:
			require.NoError(t, res.err)
			require.Len(t, res.completions, 1)
			assert.Equal(t, tc.want, res.completions[0].Result.(map[string]any)["task"])
		case <-time.After(5 * time.Second):
			t.Fatalf("flush of task %s did not finish", tc.want)
		}
	}
	assert.Equal(t, 0, broker.Len(agent.ResultQueue("env")))
}

func TestChannel_LeavesForeignResultsQueued(t *testing.T) {
	ctx := context.Background()
	broker := memory.NewBroker()
	require.NoError(t, broker.Publish(ctx, agent.ResultQueue("env"), domain.Message{ID: "stale", Body: map[string]any{}}))

	ch := agent.NewChannel("env", broker, newTemplates(t),
		agent.WithResultTimeout(2*time.Second),
		agent.WithRequeueDelay(time.Millisecond),
	)
	sendDeploy(t, ch, "c1", "db")

	go func() {
		msg, err := broker.Receive(ctx, "env-db-0", 2*time.Second)
		if err == nil {
			_ = broker.Publish(ctx, agent.ResultQueue("env"), domain.Message{ID: msg.ID, Body: map[string]any{"done": true}})
		}
	}()

	completions, err := ch.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.Equal(t, true, completions[0].Result.(map[string]any)["done"])

	stale, err := broker.Receive(ctx, agent.ResultQueue("env"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "stale", stale.ID)
}

func TestChannel_ForeignResultsDoNotExtendTimeout(t *testing.T) {
	ctx := context.Background()
	broker := memory.NewBroker()
	require.NoError(t, broker.Publish(ctx, agent.ResultQueue("env"), domain.Message{ID: "orphan", Body: map[string]any{}}))

	ch := agent.NewChannel("env", broker, newTemplates(t),
		agent.WithResultTimeout(100*time.Millisecond),
		agent.WithRequeueDelay(5*time.Millisecond),
	)
	sendDeploy(t, ch, "c1", "db")

	start := time.Now()
	_, err := ch.Flush(ctx)
	assert.ErrorIs(t, err, domain.ErrNoMessage)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, broker.Len(agent.ResultQueue("env")))
}

func TestChannel_ResultTimeout(t *testing.T) {
	ch := agent.NewChannel("env", memory.NewBroker(), newTemplates(t), agent.WithResultTimeout(50*time.Millisecond))
	require.NoError(t, ch.Execute(&domain.Command{ID: "c1", Name: agent.CommandSend, Payload: map[string]any{
		agent.PayloadTemplate: "Deploy",
	}}))
	_, err := ch.Flush(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoMessage)
}

func TestChannel_RejectsUnknownInput(t *testing.T) {
	ch := agent.NewChannel("env", memory.NewBroker(), newTemplates(t))
	assert.ErrorIs(t, ch.Execute(&domain.Command{Name: "Reboot"}), domain.ErrInvalidValue)
	assert.ErrorIs(t, ch.Execute(&domain.Command{Name: agent.CommandSend, Payload: map[string]any{
		agent.PayloadTemplate: "Missing",
	}}), domain.ErrTemplateNotFound)
}

func TestSendCommand_OverRedis(t *testing.T) {
	_, client := testutils.SetupRedis(t)
	broker := redis.NewFromClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := make(chan domain.Message, 1)
	fakeAgent(ctx, t, broker, "env", "env-web-0", seen)

	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workflow.Register(reg))
	require.NoError(t, agent.Register(reg, nil))
	assert.False(t, reg.Has(agent.TagPrepareUserData))

	doc, err := engine.ParseString(`
<workflow>
	<rule match="$.services[?(@.deployed is not True and @.sent is not True)]">
		<set path="sent"><true/></set>
		<send-command template="Deploy" service="web" unit="0" result="#reply">
			<parameter name="mappings">
				<map><parameter name="name"><select path="name"/></parameter></map>
			</parameter>
			<success>
				<set path="deployed"><true/></set>
				<set path="status"><select source="reply" path="status"/></set>
			</success>
		</send-command>
	</rule>
</workflow>`, "agent.xml")
	require.NoError(t, err)
	e := engine.New(reg)
	e.Use(doc)

	data := map[string]any{"name": "env", "services": []any{map[string]any{"name": "web"}}}
	d := dispatch.New(dispatch.WithChannel(agent.NewChannel("env", broker, newTemplates(t), agent.WithResultTimeout(5*time.Second))))
	wf := workflow.New(e, workflow.Bindings{Data: data, Values: map[string]any{workflow.KeyDispatcher: d}})

	changed, err := wf.Execute()
	require.NoError(t, err)
	assert.True(t, changed)

	drained, err := d.DrainPending(ctx, nil)
	require.NoError(t, err)
	assert.True(t, drained)

	svc := data["services"].([]any)[0].(map[string]any)
	assert.Equal(t, true, svc["deployed"])
	assert.Equal(t, "ok", svc["status"])

	plan := <-seen
	assert.Equal(t, map[string]any{"Name": "web"}, plan.Body["Parameters"])
}

func TestPrepareUserData(t *testing.T) {
	store := newTemplates(t)
	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workflow.Register(reg))
	require.NoError(t, agent.Register(reg, &agent.UserData{
		Templates: store,
		Broker:    agent.BrokerSettings{Host: "broker.local", User: "guest"},
	}))

	doc, err := engine.ParseString(`<workflow><rule match="$"><set path="userData"><prepare-user-data hostname="abc123" service="Web" unit="0"/></set></rule></workflow>`, "ud.xml")
	require.NoError(t, err)
	e := engine.New(reg)
	e.Use(doc)

	data := map[string]any{"name": "Env"}
	_, err = workflow.New(e, workflow.Bindings{Data: data}).Execute()
	require.NoError(t, err)

	script := data["userData"].(string)
	lines := strings.Split(strings.TrimSpace(script), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hostname abc123", lines[0])

	encoded := strings.TrimPrefix(lines[1], "config ")
	config, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "host=broker.local in=env-web-0 out=env-execution-results user=guest", string(config))

	_, err = (&agent.UserData{Templates: store}).Render(context.Background(), "env", "h", "s", "u", "Missing")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}
