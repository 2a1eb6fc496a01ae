package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier(t *testing.T) {
	t.Run("delivers to every listener", func(t *testing.T) {
		n := NewNotifier[int]()
		var a, b []int
		n.Subscribe(func(v int) { a = append(a, v) })
		n.Subscribe(func(v int) { b = append(b, v) })

		n.Notify(1)
		n.Notify(2)

		assert.Equal(t, []int{1, 2}, a)
		assert.Equal(t, []int{1, 2}, b)
	})

	t.Run("unsubscribe removes only its own listener", func(t *testing.T) {
		n := NewNotifier[string]()
		shared := func(string) {}
		stopA := n.Subscribe(shared)
		n.Subscribe(shared)

		stopA()
		stopA()

		assert.Equal(t, 1, n.Len())
	})

	t.Run("listener may unsubscribe while being notified", func(t *testing.T) {
		n := NewNotifier[int]()
		calls := 0
		var stop func()
		stop = n.Subscribe(func(int) {
			calls++
			stop()
		})

		n.Notify(1)
		n.Notify(2)

		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, n.Len())
	})
}
