package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_EmitOrder(t *testing.T) {
	t.Parallel()

	s := New[int]("test")
	var got []string
	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })

	s.Emit(1)

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, s.Len())
}

func TestSignal_ZeroValueUsable(t *testing.T) {
	t.Parallel()

	var s Signal[string]
	var got string
	s.Subscribe(func(v string) { got = v })
	s.Emit("hello")

	assert.Equal(t, "hello", got)
}

func TestSignal_Unsubscribe(t *testing.T) {
	t.Parallel()

	s := New[int]("test")
	calls := 0
	id := s.Subscribe(func(int) { calls++ })

	require.True(t, s.Unsubscribe(id))
	assert.False(t, s.Unsubscribe(id), "second unsubscribe is a no-op")

	s.Emit(1)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSignal_UnsubscribeDuringEmit(t *testing.T) {
	t.Parallel()

	s := New[int]("test")
	var second Subscription
	secondCalls := 0

	s.Subscribe(func(int) { s.Unsubscribe(second) })
	second = s.Subscribe(func(int) { secondCalls++ })

	s.Emit(1)
	assert.Equal(t, 0, secondCalls, "handler removed mid-dispatch must not run")
}

func TestSignal_SubscribeDuringEmit(t *testing.T) {
	t.Parallel()

	s := New[int]("test")
	lateCalls := 0
	s.Subscribe(func(int) {
		s.Subscribe(func(int) { lateCalls++ })
	})

	s.Emit(1)
	assert.Equal(t, 0, lateCalls, "handlers added during dispatch wait for the next emit")

	s.Emit(2)
	assert.Equal(t, 1, lateCalls)
}

func TestSignal_ReentrantDepthCapped(t *testing.T) {
	t.Parallel()

	s := New[int]("loop")
	calls := 0
	s.Subscribe(func(v int) {
		calls++
		s.Emit(v + 1)
	})

	s.Emit(0)

	assert.Equal(t, MaxDepth, calls)
	assert.Equal(t, 0, s.Depth(), "depth unwinds after dispatch")
}
