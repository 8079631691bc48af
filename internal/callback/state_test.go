package callback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	var s State

	phase, port := s.Snapshot()
	assert.Equal(t, PhaseIdle, phase)
	assert.Zero(t, port)

	action, _ := s.RequestStart()
	require.Equal(t, ActionLaunch, action)

	action, _ = s.RequestStart()
	assert.Equal(t, ActionPending, action, "second start while starting")

	require.True(t, s.markListening(40123))
	action, port = s.RequestStart()
	assert.Equal(t, ActionAnnounce, action)
	assert.Equal(t, 40123, port)

	s.beginStop()
	phase, port = s.Snapshot()
	assert.Equal(t, PhaseStopping, phase)
	assert.Zero(t, port, "a stopping listener exposes no port")

	assert.False(t, s.finish())
	phase, _ = s.Snapshot()
	assert.Equal(t, PhaseIdle, phase)
}

func TestStateRestartRequestedWhileStopping(t *testing.T) {
	var s State
	s.RequestStart()
	s.markListening(1)
	s.beginStop()

	action, _ := s.RequestStart()
	assert.Equal(t, ActionPending, action)

	assert.True(t, s.finish(), "finish must hand over to a new run")
	phase, _ := s.Snapshot()
	assert.Equal(t, PhaseStarting, phase)

	assert.False(t, s.finish(), "restart request is consumed once")
}

func TestStateConcurrentStartsLaunchOnce(t *testing.T) {
	var s State
	var wg sync.WaitGroup
	var mu sync.Mutex
	launches := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if action, _ := s.RequestStart(); action == ActionLaunch {
				mu.Lock()
				launches++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, launches)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "listening", PhaseListening.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.IsSet())

	first := s.Done()
	select {
	case <-first:
		t.Fatal("cleared signal must not be done")
	default:
	}

	s.Set()
	s.Set()
	assert.True(t, s.IsSet())
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Set")
	}

	s.Clear()
	assert.False(t, s.IsSet())
	second := s.Done()
	select {
	case <-second:
		t.Fatal("fresh channel must be open after Clear")
	default:
	}

	s.Clear()
	assert.Equal(t, second, s.Done(), "clearing a cleared signal keeps the channel")

	s.Set()
	<-second
}

func TestSignalSetForIgnoresStaleGeneration(t *testing.T) {
	s := NewSignal()
	done, gen := s.Watch()

	s.Clear()
	assert.False(t, s.SetFor(gen), "a newer Clear wins over a stale SetFor")
	assert.False(t, s.IsSet())
	select {
	case <-done:
		t.Fatal("stale SetFor must not wake waiters")
	default:
	}

	_, gen = s.Watch()
	assert.True(t, s.SetFor(gen))
	assert.True(t, s.IsSet())
	<-done

	s.Clear()
	s.Set()
	assert.True(t, s.IsSet(), "plain Set ignores generations")
	assert.True(t, s.SetFor(gen), "SetFor reports an already raised flag")
}
