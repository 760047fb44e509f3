// Package monitor serializes every access to a running net. Workers call
// Fire with the transition they want; the monitor blocks them while it is
// not fireable and, on every state change, wakes exactly one blocked worker
// chosen by the firing policy.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/LaureanoOlocco/concurrency-lab/core/matrix"
	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
	"github.com/LaureanoOlocco/concurrency-lab/core/policy"
)

// Clock returns the current wall-clock time in milliseconds.
type Clock func() int64

// Config wires a monitor: the net it guards, the wake-up policy, the
// termination condition and the expected worker count (which bounds the
// depth of each condition queue).
type Config struct {
	Net            *petri.Net
	Policy         policy.Policy
	ExitTransition int
	ExitCount      int
	Workers        int
	Clock          Clock
	Logger         zerolog.Logger
}

// Monitor owns the mutual exclusion over a net. The mutex is a binary
// weighted semaphore; the per-transition condition queues are buffered
// channels used as counting semaphores, so a wake issued before the worker
// parks is never lost.
type Monitor struct {
	mu      *semaphore.Weighted
	net     *petri.Net
	policy  policy.Policy
	queues  []chan struct{}
	blocked []int // queue depths, guarded by mu
	exitT   int
	exitN   int
	clock   Clock
	log     zerolog.Logger

	done     chan struct{}
	drainOne sync.Once
}

// New creates a monitor over cfg.Net.
func New(cfg Config) (*Monitor, error) {
	if cfg.Net == nil {
		return nil, errors.New("monitor needs a net")
	}
	if cfg.Policy == nil {
		return nil, errors.New("monitor needs a policy")
	}
	transitions := cfg.Net.TransitionCount()
	if cfg.ExitTransition < 0 || cfg.ExitTransition >= transitions {
		return nil, fmt.Errorf("exit transition %d: %w", cfg.ExitTransition, matrix.ErrOutOfRange)
	}
	if cfg.ExitCount <= 0 {
		return nil, fmt.Errorf("exit count must be positive, got %d", cfg.ExitCount)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = transitions
	}
	if cfg.Clock == nil {
		cfg.Clock = func() int64 { return time.Now().UnixMilli() }
	}
	m := &Monitor{
		mu:      semaphore.NewWeighted(1),
		net:     cfg.Net,
		policy:  cfg.Policy,
		queues:  make([]chan struct{}, transitions),
		blocked: make([]int, transitions),
		exitT:   cfg.ExitTransition,
		exitN:   cfg.ExitCount,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		done:    make(chan struct{}),
	}
	for t := range m.queues {
		m.queues[t] = make(chan struct{}, cfg.Workers)
	}
	return m, nil
}

// Done is closed once the termination condition has been observed and the
// queues drained. The report writer waits on it instead of polling.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Fire attempts to fire transition t, blocking until it succeeds, the
// simulation terminates, or ctx is cancelled. It returns true on a
// successful firing and false once the exit transition has reached its
// target count. Structural faults in the net surface as errors.
func (m *Monitor) Fire(ctx context.Context, t int) (bool, error) {
	if t < 0 || t >= m.net.TransitionCount() {
		return false, fmt.Errorf("transition %d: %w", t, matrix.ErrOutOfRange)
	}
	if err := m.mu.Acquire(ctx, 1); err != nil {
		return false, err
	}

	slept := false
	for {
		if m.net.FireCount(m.exitT) >= m.exitN {
			m.drain()
			m.mu.Release(1)
			return false, nil
		}

		now := m.clock()
		if !slept && m.net.IsEnabled(t) && m.net.IsTimed(t) &&
			!m.net.Waiting(t) && !m.net.TemporallyReady(t, now) {
			delay := m.net.Timestamp(t) + m.net.MinDelay(t) - now
			m.net.SetWaiting(t, true)
			m.release(now)
			err := m.sleep(ctx, delay)
			m.acquireOwned()
			m.net.SetWaiting(t, false)
			if err != nil {
				// Early wake-up: the flag is cleared under the lock
				// before the cancellation surfaces.
				m.release(m.clock())
				return false, err
			}
			slept = true
			continue
		}

		permit := !m.net.Waiting(t) && m.net.IsEnabled(t) &&
			(slept || !m.net.IsTimed(t) || m.net.TemporallyReady(t, now))
		slept = false

		err := m.net.TryFire(t, permit, now)
		switch {
		case err == nil:
			m.log.Debug().Int("transition", t).Msg("fired")
			m.release(now)
			return true, nil
		case errors.Is(err, petri.ErrNotEnabled):
			m.blocked[t]++
			m.release(now)
			if err := m.wait(ctx, t); err != nil {
				return false, err
			}
			if err := m.mu.Acquire(ctx, 1); err != nil {
				return false, err
			}
		default:
			m.release(now)
			return false, fmt.Errorf("firing T%d: %w", t, err)
		}
	}
}

// release gives up the net. If some transition is fireable right now and
// has a blocked worker, the policy picks one queue and a single permit is
// released on it before the mutex; otherwise the mutex alone is released.
// Transitions with a sleeper in flight are never offered to the policy.
func (m *Monitor) release(now int64) {
	candidates := m.net.EnabledNow(now) & m.waiterMask() &^ m.net.WaitingMask()
	if candidates != 0 {
		pick := m.policy.Pick(candidates, m.net.Fires())
		if pick >= 0 && pick < len(m.queues) && candidates&(1<<pick) != 0 && m.blocked[pick] > 0 {
			m.blocked[pick]--
			m.queues[pick] <- struct{}{}
		}
	}
	m.mu.Release(1)
}

func (m *Monitor) waiterMask() uint32 {
	var mask uint32
	for t, n := range m.blocked {
		if n > 0 {
			mask |= 1 << t
		}
	}
	return mask
}

// wait parks the worker on t's condition queue. On cancellation the worker
// re-enters the critical section to fix the queue bookkeeping: a wake that
// raced the cancellation is consumed, otherwise the depth is decremented.
func (m *Monitor) wait(ctx context.Context, t int) error {
	select {
	case <-m.queues[t]:
		return nil
	case <-ctx.Done():
		m.acquireOwned()
		select {
		case <-m.queues[t]:
		default:
			m.blocked[t]--
		}
		m.release(m.clock())
		return ctx.Err()
	}
}

// sleep waits out a lower time bound with the net released.
func (m *Monitor) sleep(ctx context.Context, delay int64) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquireOwned re-enters the critical section on a path that must not fail:
// clearing a sleeper flag or fixing queue bookkeeping.
func (m *Monitor) acquireOwned() {
	_ = m.mu.Acquire(context.Background(), 1)
}

// drain releases one permit on every non-empty queue so blocked workers can
// observe termination themselves; each of them drains again on the way out,
// so every worker is released within a bounded number of wake-ups.
func (m *Monitor) drain() {
	for t, depth := range m.blocked {
		if depth > 0 {
			m.blocked[t]--
			m.queues[t] <- struct{}{}
		}
	}
	m.drainOne.Do(func() {
		m.log.Info().
			Int("exit_transition", m.exitT).
			Int("exit_count", m.exitN).
			Msg("termination reached, draining workers")
		close(m.done)
	})
}
