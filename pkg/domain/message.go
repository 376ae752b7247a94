package domain

import "time"

// Well-known queue names.
const (
	QueueTasks   = "tasks"
	QueueResults = "task-results"
	QueueReports = "task-reports"
)

// KeyToken is the task field holding the caller's credential. It never leaves the process.
const KeyToken = "token"

// Message is the envelope exchanged over a broker. ID correlates a result or report
// with the message that caused it.
type Message struct {
	ID   string         `json:"id"`
	Body map[string]any `json:"body"`
}

// Task is the payload a set of workflows is driven against, together with the
// identifier of the message that delivered it.
type Task struct {
	MessageID string
	Data      map[string]any
}

// NewTask wraps an inbound message body.
func NewTask(messageID string, data map[string]any) *Task {
	if data == nil {
		data = map[string]any{}
	}
	return &Task{MessageID: messageID, Data: data}
}

// ID returns the task's own identifier (the "id" field).
func (t *Task) ID() string { return t.field("id") }

// Name returns the task's name, used as the stack name by the channels.
func (t *Task) Name() string { return t.field("name") }

// Token returns the credential carried by the task.
func (t *Task) Token() string { return t.field(KeyToken) }

// TenantID returns the tenant the task belongs to.
func (t *Task) TenantID() string { return t.field("tenant_id") }

func (t *Task) field(key string) string {
	v, ok := t.Data[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Redact removes the credential from the payload.
func (t *Task) Redact() {
	delete(t.Data, KeyToken)
}

// Result builds the outbound result message for the task.
func (t *Task) Result() Message {
	return Message{ID: t.MessageID, Body: t.Data}
}

// Report is a progress message emitted while a task is processed.
type Report struct {
	ID            string `json:"id"`
	Entity        string `json:"entity"`
	Text          string `json:"text"`
	EnvironmentID string `json:"environment_id"`
}

// Body renders the report as a message body.
func (r Report) Body() map[string]any {
	return map[string]any{
		"id":             r.ID,
		"entity":         r.Entity,
		"text":           r.Text,
		"environment_id": r.EnvironmentID,
	}
}

// CallbackFunc is invoked with the result of a completed command.
type CallbackFunc func(result any) error

// Command is a request queued on a channel until the next drain.
type Command struct {
	ID       string
	Channel  string
	Name     string
	Payload  map[string]any
	Callback CallbackFunc
	Queued   time.Time
}

// Completion pairs a flushed command's callback with the result it should receive.
type Completion struct {
	Command *Command
	Result  any
}
