package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaureanoOlocco/concurrency-lab/core/matrix"
	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
	"github.com/LaureanoOlocco/concurrency-lab/core/policy"
)

func newTestMonitor(t *testing.T, profile petri.AlphaProfile, exitT, exitN int) (*Monitor, *petri.Net) {
	t.Helper()
	net, err := petri.NewNet(petri.Agency(), profile, time.Now().UnixMilli())
	require.NoError(t, err)
	mon, err := New(Config{
		Net:            net,
		Policy:         policy.Balanced{},
		ExitTransition: exitT,
		ExitCount:      exitN,
		Workers:        8,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	return mon, net
}

func TestNewValidation(t *testing.T) {
	net, err := petri.NewNet(petri.Agency(), petri.ProfileFast, 0)
	require.NoError(t, err)

	_, err = New(Config{Policy: policy.Balanced{}, ExitTransition: 11, ExitCount: 1})
	assert.Error(t, err)
	_, err = New(Config{Net: net, ExitTransition: 11, ExitCount: 1})
	assert.Error(t, err)
	_, err = New(Config{Net: net, Policy: policy.Balanced{}, ExitTransition: 12, ExitCount: 1})
	assert.ErrorIs(t, err, matrix.ErrOutOfRange)
	_, err = New(Config{Net: net, Policy: policy.Balanced{}, ExitTransition: 11, ExitCount: 0})
	assert.Error(t, err)
}

func TestColdStartFire(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 11, 186)

	ok, err := mon.Fire(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, net.FireCount(0))
	assert.Equal(t, "T0 ", net.Sequence())
}

func TestFireOutOfRange(t *testing.T) {
	mon, _ := newTestMonitor(t, petri.ProfileFast, 11, 186)
	_, err := mon.Fire(context.Background(), 12)
	assert.ErrorIs(t, err, matrix.ErrOutOfRange)
}

// Two workers race the entry transition until its token budget is spent.
func TestTwoWorkerRaceOnEntry(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 0, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	successes := 0
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ok, err := mon.Fire(ctx, 0)
				if !assert.NoError(t, err) || !ok {
					return
				}
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successes)
	assert.Equal(t, 5, net.FireCount(0))
	m := net.Marking()
	assert.Equal(t, 0, m[0])
	assert.Equal(t, 5, m[1])
}

// A registration attempted right after the client enters has to wait out
// the registration's lower time bound.
func TestAlphaGating(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileMedium, 11, 186)
	alpha := time.Duration(net.MinDelay(1)) * time.Millisecond
	require.Equal(t, 30*time.Millisecond, alpha)

	start := time.Now()
	ok, err := mon.Fire(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mon.Fire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Millisecond clock granularity allows a hair of slack.
	assert.GreaterOrEqual(t, time.Since(start), alpha-2*time.Millisecond)
	assert.False(t, net.Waiting(1))
}

// A worker blocked on a never-enabled transition is released, with a false
// result, once termination is observed.
func TestTerminationDrainsBlockedWorkers(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 0, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		ok, err := mon.Fire(ctx, 5)
		assert.NoError(t, err)
		result <- ok
	}()

	// Give the worker time to park on its queue, then run to termination.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 2; i++ {
		ok, err := mon.Fire(ctx, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := mon.Fire(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked worker was not drained")
	}

	select {
	case <-mon.Done():
	default:
		t.Fatal("termination latch not closed")
	}
	assert.Equal(t, 2, net.FireCount(0))
}

// After termination every further call answers false without mutating the
// engine.
func TestFireAfterTermination(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 0, 1)
	ctx := context.Background()

	ok, err := mon.Fire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	before := net.Marking()
	for i := 0; i < 3; i++ {
		ok, err := mon.Fire(ctx, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, before, net.Marking())
	assert.Equal(t, 1, net.SequenceLen())
}

func TestQueueWaitCancellation(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 11, 186)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := mon.Fire(ctx, 5)
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled worker never returned")
	}

	// The monitor stays usable after the cancellation.
	ok, err := mon.Fire(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, net.FireCount(0))
}

// The policy wakes the blocked worker whose transition just became
// fireable: an agent waiting for a client is released as soon as the
// registration fires.
func TestReleaseWakesPolicyChoice(t *testing.T) {
	mon, net := newTestMonitor(t, petri.ProfileFast, 11, 186)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agentFired := make(chan struct{})
	go func() {
		ok, err := mon.Fire(ctx, 2)
		assert.NoError(t, err)
		assert.True(t, ok)
		close(agentFired)
	}()

	time.Sleep(50 * time.Millisecond)
	ok, err := mon.Fire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mon.Fire(ctx, 1) // sleeps out the registration bound, then fires
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-agentFired:
	case <-time.After(5 * time.Second):
		t.Fatal("agent was never woken")
	}
	assert.Equal(t, 1, net.FireCount(2))
}
