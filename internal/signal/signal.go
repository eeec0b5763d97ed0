// Package signal implements a synchronous observer used for stat, grade and
// config change notifications.
//
// Handlers run on the caller's goroutine, in subscription order. A handler may
// emit on the same signal again (re-entrant dispatch), but nesting deeper than
// MaxDepth is dropped so a feedback loop between listeners cannot recurse forever.
//
// Signal is not safe for concurrent use; the owner serializes access.
package signal

import "log/slog"

// MaxDepth is the maximum number of nested Emit calls on one signal.
const MaxDepth = 16

// Subscription identifies a subscribed handler. Zero is never issued.
type Subscription uint64

type handler[T any] struct {
	id Subscription
	fn func(T)
}

// Signal delivers values of type T to subscribed handlers.
// The zero value is ready to use.
type Signal[T any] struct {
	name     string
	handlers []handler[T]
	nextID   Subscription
	depth    int
}

// New creates a named signal. The name is only used in log output.
func New[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

// Subscribe registers fn and returns its subscription handle.
func (s *Signal[T]) Subscribe(fn func(T)) Subscription {
	s.nextID++
	s.handlers = append(s.handlers, handler[T]{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe removes the handler. Returns false if it was not subscribed.
func (s *Signal[T]) Unsubscribe(id Subscription) bool {
	for i, h := range s.handlers {
		if h.id == id {
			// New backing array: an Emit in progress keeps iterating its own snapshot.
			next := make([]handler[T], 0, len(s.handlers)-1)
			next = append(next, s.handlers[:i]...)
			s.handlers = append(next, s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers v to every handler subscribed at the moment of the call.
// Handlers unsubscribed during delivery are skipped.
func (s *Signal[T]) Emit(v T) {
	if len(s.handlers) == 0 {
		return
	}
	if s.depth >= MaxDepth {
		slog.Warn("signal dispatch depth exceeded, dropping emit",
			"signal", s.name,
			"depth", s.depth)
		return
	}

	s.depth++
	defer func() { s.depth-- }()

	snapshot := s.handlers
	for _, h := range snapshot {
		if !s.subscribed(h.id) {
			continue
		}
		h.fn(v)
	}
}

// Len returns the number of subscribed handlers.
func (s *Signal[T]) Len() int {
	return len(s.handlers)
}

// Depth returns the current nesting level of Emit (0 when idle).
func (s *Signal[T]) Depth() int {
	return s.depth
}

func (s *Signal[T]) subscribed(id Subscription) bool {
	for _, h := range s.handlers {
		if h.id == id {
			return true
		}
	}
	return false
}
