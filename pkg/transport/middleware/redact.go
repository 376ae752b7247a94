package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Mask replaces the value of a redacted key.
const Mask = "***"

type redactBroker struct {
	next     ports.Broker
	patterns []*regexp.Regexp
	queues   map[string]bool
}

// NewRedactMiddleware creates a middleware that masks the values of keys matching
// any of the patterns, at any depth, in messages published to queues. With no
// queues every published message is masked. Received messages are left alone.
func NewRedactMiddleware(patternStrings []string, queues ...string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	var only map[string]bool
	if len(queues) > 0 {
		only = make(map[string]bool, len(queues))
		for _, q := range queues {
			only[q] = true
		}
	}
	return func(next ports.Broker) ports.Broker {
		return &redactBroker{next: next, patterns: patterns, queues: only}
	}, nil
}

func (b *redactBroker) Publish(ctx context.Context, queue string, msg domain.Message) error {
	if len(b.patterns) > 0 && (b.queues == nil || b.queues[queue]) {
		// The caller keeps its own copy unmasked.
		body, _ := domain.Clone(msg.Body).(map[string]any)
		b.mask(body)
		msg.Body = body
	}
	return b.next.Publish(ctx, queue, msg)
}

func (b *redactBroker) Receive(ctx context.Context, queue string, timeout time.Duration) (*domain.Message, error) {
	return b.next.Receive(ctx, queue, timeout)
}

func (b *redactBroker) Close() error {
	return b.next.Close()
}

func (b *redactBroker) mask(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			if b.matches(k) {
				t[k] = Mask
				continue
			}
			b.mask(item)
		}
	case []any:
		for _, item := range t {
			b.mask(item)
		}
	}
}

func (b *redactBroker) matches(key string) bool {
	for _, p := range b.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
