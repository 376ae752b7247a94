package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTaskStart  EventType = "task_start"
	EventTaskFinish EventType = "task_finish"
	EventPass       EventType = "pass"
	EventDrain      EventType = "drain"
	EventCommand    EventType = "command"
)

// Task outcomes reported on EventTaskFinish.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeExternal  = "external_failure"
	OutcomeRejected  = "rejected"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id"`
}

// TaskEvent marks the start or the end of a task.
type TaskEvent struct {
	EventBase
	TaskID   string        `json:"task_id"`
	Outcome  string        `json:"outcome,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// PassEvent is emitted after every pass over the loaded workflows.
type PassEvent struct {
	EventBase
	Pass    int  `json:"pass"`
	Changed bool `json:"changed"`
}

// DrainEvent is emitted after every drain of pending commands.
type DrainEvent struct {
	EventBase
	Drained bool `json:"drained"`
}

// CommandEvent is emitted when a command is queued on a channel.
type CommandEvent struct {
	EventBase
	Channel string `json:"channel"`
	Command string `json:"command"`
}

// LifecycleHooks defines callbacks for observability. Nil members are skipped.
type LifecycleHooks struct {
	OnTaskStart  func(context.Context, *TaskEvent)
	OnTaskFinish func(context.Context, *TaskEvent)
	OnPass       func(context.Context, *PassEvent)
	OnDrain      func(context.Context, *DrainEvent)
	OnCommand    func(context.Context, *CommandEvent)
}
