package petri

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LaureanoOlocco/concurrency-lab/core/matrix"
)

var (
	// ErrNotEnabled indicates a firing attempt without a permit. Callers
	// treat it as control flow, not as a fault.
	ErrNotEnabled = errors.New("transition not enabled")
	// ErrInvariantViolation indicates a firing that would break a place
	// invariant. The modeled net is conservative, so hitting it means the
	// topology and invariants disagree.
	ErrInvariantViolation = errors.New("place invariant violated")
)

// Net is the state of one running net: marking, firing counters,
// sensitization timestamps and the fired-sequence log.
//
// A Net is not safe for concurrent use. Every access, read or write, must
// happen inside the monitor's critical section.
type Net struct {
	topo       *Topology
	alphas     []int64
	marking    []int
	fires      []int
	timestamps []int64 // moment each transition last changed enabledness, wall-clock ms
	waiting    []bool  // a worker is sleeping out its lower time bound
	sequence   []int
}

// NewNet creates a net at the topology's initial marking. All timestamps
// start at now; counters, sequence and waiting flags start empty.
func NewNet(topo *Topology, profile AlphaProfile, now int64) (*Net, error) {
	if err := topo.Verify(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	alphas, err := topo.Alphas(profile)
	if err != nil {
		return nil, err
	}
	n := &Net{
		topo:       topo,
		alphas:     alphas,
		marking:    make([]int, topo.Places),
		fires:      make([]int, topo.Transitions),
		timestamps: make([]int64, topo.Transitions),
		waiting:    make([]bool, topo.Transitions),
	}
	copy(n.marking, topo.Initial)
	for t := range n.timestamps {
		n.timestamps[t] = now
	}
	return n, nil
}

// Topology returns the net's immutable structure.
func (n *Net) Topology() *Topology { return n.topo }

// TransitionCount returns the number of transitions.
func (n *Net) TransitionCount() int { return n.topo.Transitions }

// EnabledByMarking returns the bitmask of transitions whose firing would
// leave every place non-negative.
func (n *Net) EnabledByMarking() uint32 {
	var mask uint32
	for t := 0; t < n.topo.Transitions; t++ {
		if n.enabledAt(t) {
			mask |= 1 << t
		}
	}
	return mask
}

func (n *Net) enabledAt(t int) bool {
	for p := 0; p < n.topo.Places; p++ {
		if n.marking[p]+n.topo.Incidence[p][t] < 0 {
			return false
		}
	}
	return true
}

// EnabledNow returns the transitions enabled by marking whose lower time
// bound has also elapsed at now.
func (n *Net) EnabledNow(now int64) uint32 {
	mask := n.EnabledByMarking()
	for t := 0; t < n.topo.Transitions; t++ {
		if mask&(1<<t) != 0 && !n.TemporallyReady(t, now) {
			mask &^= 1 << t
		}
	}
	return mask
}

// IsEnabled reports whether t is enabled by the current marking.
func (n *Net) IsEnabled(t int) bool { return n.enabledAt(t) }

// IsTimed reports whether t carries a lower time bound.
func (n *Net) IsTimed(t int) bool { return n.topo.Timed[t] }

// TemporallyReady reports whether t has been continuously enabled for at
// least its lower bound as of now.
func (n *Net) TemporallyReady(t int, now int64) bool {
	return now-n.timestamps[t] >= n.alphas[t]
}

// MinDelay returns t's lower time bound in milliseconds.
func (n *Net) MinDelay(t int) int64 { return n.alphas[t] }

// Timestamp returns the moment t last changed enabledness.
func (n *Net) Timestamp(t int) int64 { return n.timestamps[t] }

// Waiting reports whether a worker is sleeping out t's lower bound.
func (n *Net) Waiting(t int) bool { return n.waiting[t] }

// SetWaiting marks or clears the sleeper-in-flight flag for t.
func (n *Net) SetWaiting(t int, v bool) { n.waiting[t] = v }

// WaitingMask returns the bitmask of transitions with a sleeper in flight.
func (n *Net) WaitingMask() uint32 {
	var mask uint32
	for t, w := range n.waiting {
		if w {
			mask |= 1 << t
		}
	}
	return mask
}

// TryFire attempts to fire t at time now. The caller pre-computes permit:
// enabled by marking, lower bound elapsed, no sleeper in flight. Without a
// permit nothing is mutated and ErrNotEnabled is returned.
//
// On success the marking, counter and sequence are updated, and the
// timestamp of every transition whose enabledness changed, rising or
// falling, is reset to now. Timestamps do not move on firings that leave
// a transition's enabledness unchanged; that is what makes the lower bound
// measure continuous enablement.
func (n *Net) TryFire(t int, permit bool, now int64) error {
	if t < 0 || t >= n.topo.Transitions {
		return fmt.Errorf("transition %d of %d: %w", t, n.topo.Transitions, matrix.ErrOutOfRange)
	}
	if !permit {
		return ErrNotEnabled
	}
	unit, err := matrix.Unit(t, n.topo.Transitions)
	if err != nil {
		return err
	}
	delta, err := matrix.Multiply(n.topo.Incidence, unit)
	if err != nil {
		return err
	}
	next, err := matrix.Add(n.marking, delta)
	if err != nil {
		return err
	}
	for p, m := range next {
		if m < 0 {
			return fmt.Errorf("firing T%d would leave P%d at %d in %v: %w", t, p, m, next, ErrInvariantViolation)
		}
	}
	for k, inv := range n.topo.PlaceInvariants {
		sum := 0
		for _, p := range inv.Places {
			sum += next[p]
		}
		if sum != inv.Sum {
			return fmt.Errorf("firing T%d breaks invariant %d: marking %v sums to %d, want %d: %w",
				t, k+1, next, sum, inv.Sum, ErrInvariantViolation)
		}
	}

	before := n.EnabledByMarking()
	n.marking = next
	n.fires[t]++
	n.sequence = append(n.sequence, t)
	after := n.EnabledByMarking()
	for i := 0; i < n.topo.Transitions; i++ {
		if (before^after)&(1<<i) != 0 {
			n.timestamps[i] = now
		}
	}
	return nil
}

// Marking returns a copy of the current marking.
func (n *Net) Marking() []int {
	m := make([]int, len(n.marking))
	copy(m, n.marking)
	return m
}

// Fires returns a copy of the per-transition firing counters.
func (n *Net) Fires() []int {
	f := make([]int, len(n.fires))
	copy(f, n.fires)
	return f
}

// FireCount returns the number of successful firings of t.
func (n *Net) FireCount(t int) int { return n.fires[t] }

// MaxFires returns the largest per-transition firing count.
func (n *Net) MaxFires() int {
	max := 0
	for _, f := range n.fires {
		if f > max {
			max = f
		}
	}
	return max
}

// Sequence renders the fired-sequence log as space-terminated "T{i}" tokens,
// in firing order.
func (n *Net) Sequence() string {
	var b strings.Builder
	for _, t := range n.sequence {
		fmt.Fprintf(&b, "T%d ", t)
	}
	return b.String()
}

// SequenceLen returns the number of recorded firings.
func (n *Net) SequenceLen() int { return len(n.sequence) }

// InvariantCounts reports how many complete cycles of each
// transition-invariant family the firing counters account for. Each pass
// visits the families in declaration order and subtracts one cycle from
// every family whose member counts are all still positive; passes repeat
// until none makes progress. Declaration order settles which family keeps
// drawing once the remaining counts can no longer feed all of them. The
// counters themselves are not modified.
func (n *Net) InvariantCounts() []int {
	remaining := n.Fires()
	counts := make([]int, len(n.topo.TransitionInvariants))
	for {
		progressed := false
		for j, inv := range n.topo.TransitionInvariants {
			complete := true
			for _, t := range inv {
				if remaining[t] == 0 {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}
			for _, t := range inv {
				remaining[t]--
			}
			counts[j]++
			progressed = true
		}
		if !progressed {
			return counts
		}
	}
}
