// Package middleware decorates a ports.Broker with policies applied to every
// message it carries.
package middleware

import "github.com/aretw0/conductor/pkg/ports"

// Middleware allows wrapping a Broker to add behavior.
type Middleware func(ports.Broker) ports.Broker

// Chain wraps b with mws. The first middleware is the outermost.
func Chain(b ports.Broker, mws ...Middleware) ports.Broker {
	for i := len(mws) - 1; i >= 0; i-- {
		b = mws[i](b)
	}
	return b
}
