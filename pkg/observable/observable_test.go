package observable

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestSubject_ReplaysLatestToLateSubscriber(t *testing.T) {
	s := New[int]()
	s.Publish(1)
	s.Publish(2)

	ch, cancel := s.Subscribe(4)
	defer cancel()

	assert.Equal(t, []int{2}, drain(ch))

	s.Publish(3)
	assert.Equal(t, []int{3}, drain(ch))
}

func TestSubject_NoValueNoReplay(t *testing.T) {
	s := New[string]()
	ch, cancel := s.Subscribe(1)
	defer cancel()

	assert.Empty(t, drain(ch))
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSubject_WithInitial(t *testing.T) {
	s := New(WithInitial("idle"))
	ch, cancel := s.Subscribe(1)
	defer cancel()

	assert.Equal(t, []string{"idle"}, drain(ch))
}

func TestSubject_WithEqualDeduplicates(t *testing.T) {
	type state struct {
		status  string
		latency int
	}
	s := New(WithEqual(func(a, b state) bool { return a.status == b.status }))

	ch, cancel := s.Subscribe(8)
	defer cancel()

	assert.True(t, s.Publish(state{"connecting", 0}))
	assert.True(t, s.Publish(state{"connected", 0}))
	assert.False(t, s.Publish(state{"connected", 40}))
	assert.True(t, s.Publish(state{"disconnected", 0}))

	got := drain(ch)
	require.Len(t, got, 3)
	assert.Equal(t, "connecting", got[0].status)
	assert.Equal(t, "connected", got[1].status)
	assert.Equal(t, "disconnected", got[2].status)
}

func TestSubject_SlowSubscriberKeepsNewest(t *testing.T) {
	s := New[int]()
	ch, cancel := s.Subscribe(2)
	defer cancel()

	for i := 1; i <= 10; i++ {
		s.Publish(i)
	}

	assert.Equal(t, []int{9, 10}, drain(ch))
}

func TestSubject_PublishNeverBlocks(t *testing.T) {
	s := New[int]()
	_, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			s.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on an unread subscriber")
	}
}

func TestSubject_CancelClosesChannel(t *testing.T) {
	s := New[int]()
	ch, cancel := s.Subscribe(1)
	assert.Equal(t, 1, s.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, s.Subscribers())
	assert.True(t, s.Publish(1))
}

func TestSubject_Close(t *testing.T) {
	s := New[int]()
	s.Publish(7)
	ch, cancel := s.Subscribe(2)
	defer cancel()

	s.Close()
	s.Close()

	assert.Equal(t, []int{7}, drain(ch))
	_, ok := <-ch
	assert.False(t, ok)
	assert.False(t, s.Publish(8))

	// Subscribing after close still replays the last value, then closes
	late, lateCancel := s.Subscribe(1)
	lateCancel()
	assert.Equal(t, []int{7}, drain(late))
}

func TestSubject_ConcurrentUse(t *testing.T) {
	s := New[int]()
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Publish(i)
			}
		}()
	}
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ch, cancel := s.Subscribe(1)
				drain(ch)
				cancel()
			}
		}()
	}

	wg.Wait()
	_, ok := s.Latest()
	assert.True(t, ok)
}
