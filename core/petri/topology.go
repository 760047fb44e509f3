package petri

import (
	"fmt"

	"github.com/LaureanoOlocco/concurrency-lab/core/matrix"
)

// AlphaProfile names one of the built-in timing profiles.
type AlphaProfile string

const (
	ProfileFast   AlphaProfile = "fast"
	ProfileMedium AlphaProfile = "medium"
	ProfileSlow   AlphaProfile = "slow"
)

// PlaceInvariant is a set of places whose token sum stays constant.
type PlaceInvariant struct {
	Places []int
	Sum    int
}

// Topology is the immutable structure of a net: incidence matrix, initial
// marking, invariant families and the temporal profile of its transitions.
type Topology struct {
	Places               int
	Transitions          int
	Incidence            [][]int // Places rows x Transitions columns
	Initial              []int
	PlaceInvariants      []PlaceInvariant
	TransitionInvariants [][]int
	Timed                []bool
	alphas               map[AlphaProfile][]int64
}

// Agency returns the travel-agency net: clients enter (T0), a manager
// registers them (T1), one of two agents prepares a booking (T2/T5 or
// T3/T4), the cashier accepts (T6, invoiced by T9/T10) or rejects (T7/T8)
// the payment, and the client leaves (T11).
func Agency() *Topology {
	return &Topology{
		Places:      15,
		Transitions: 12,
		Incidence: [][]int{
			//T0  T1  T2  T3  T4  T5  T6  T7  T8  T9 T10 T11
			{-1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},  // P0 clients outside
			{1, -1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},  // P1 awaiting registration
			{0, 1, -1, -1, 0, 0, 0, 0, 0, 0, 0, 0}, // P2 awaiting an agent
			{0, 0, -1, 0, 0, 1, 0, 0, 0, 0, 0, 0},  // P3 agent 1 free
			{0, 0, 0, -1, 1, 0, 0, 0, 0, 0, 0, 0},  // P4 agent 2 free
			{0, 0, 1, 0, 0, -1, 0, 0, 0, 0, 0, 0},  // P5 with agent 1
			{0, 0, 0, 1, -1, 0, 0, 0, 0, 0, 0, 0},  // P6 with agent 2
			{0, 0, 0, 0, 1, 1, -1, -1, 0, 0, 0, 0}, // P7 awaiting payment decision
			{0, 0, 0, 0, 0, 0, 1, 0, 0, -1, 0, 0},  // P8 invoicing
			{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, -1, 0},  // P9 awaiting receipt
			{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, -1},  // P10 ready to leave
			{0, 0, 0, 0, 0, 0, 0, 1, -1, 0, 0, 0},  // P11 rejection pending
			{0, -1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0},  // P12 manager free
			{0, 0, 0, 0, 0, 0, -1, -1, 1, 0, 1, 0}, // P13 cashier free
			{0, 0, 0, 0, 0, 0, 0, 0, 0, -1, 1, 0},  // P14 printer free
		},
		Initial: []int{5, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1},
		PlaceInvariants: []PlaceInvariant{
			{Places: []int{0, 1, 2, 5, 6, 7, 8, 9, 10, 11}, Sum: 5},
			{Places: []int{2, 12}, Sum: 1},
			{Places: []int{3, 5}, Sum: 1},
			{Places: []int{4, 6}, Sum: 1},
			{Places: []int{8, 9, 11, 13}, Sum: 1},
			{Places: []int{9, 14}, Sum: 1},
		},
		TransitionInvariants: [][]int{
			{0, 1, 3, 4, 7, 8, 11},
			{0, 1, 3, 4, 6, 9, 10, 11},
			{0, 1, 2, 5, 7, 8, 11},
			{0, 1, 2, 5, 6, 9, 10, 11},
		},
		Timed: []bool{false, true, false, false, true, true, false, false, true, true, true, false},
		alphas: map[AlphaProfile][]int64{
			ProfileFast:   {0, 10, 0, 0, 15, 15, 0, 0, 10, 20, 10, 0},
			ProfileMedium: {0, 30, 0, 0, 45, 45, 0, 0, 30, 60, 30, 0},
			ProfileSlow:   {0, 100, 0, 0, 150, 150, 0, 0, 100, 200, 100, 0},
		},
	}
}

// Alphas returns the per-transition lower time bounds for a profile, in
// milliseconds.
func (tp *Topology) Alphas(profile AlphaProfile) ([]int64, error) {
	alphas, ok := tp.alphas[profile]
	if !ok {
		return nil, fmt.Errorf("unknown alpha profile %q", profile)
	}
	return alphas, nil
}

// Profiles lists the profile names the topology defines.
func (tp *Topology) Profiles() []AlphaProfile {
	return []AlphaProfile{ProfileFast, ProfileMedium, ProfileSlow}
}

// Verify checks that the topology is internally consistent: matrix
// dimensions, conservation of every place-invariant family under every
// column, the initial marking satisfying the invariant constants,
// transition-invariant cycles returning to the initial marking, and a zero
// time bound on every untimed transition.
func (tp *Topology) Verify() error {
	if tp.Places <= 0 || tp.Transitions <= 0 {
		return fmt.Errorf("net must have places and transitions, got %dx%d", tp.Places, tp.Transitions)
	}
	if len(tp.Incidence) != tp.Places {
		return fmt.Errorf("incidence matrix has %d rows, want %d: %w", len(tp.Incidence), tp.Places, matrix.ErrDimMismatch)
	}
	for p, row := range tp.Incidence {
		if len(row) != tp.Transitions {
			return fmt.Errorf("incidence row %d has %d columns, want %d: %w", p, len(row), tp.Transitions, matrix.ErrDimMismatch)
		}
		for t, w := range row {
			if w < -1 || w > 1 {
				return fmt.Errorf("arc weight %d at P%d/T%d outside ±1", w, p, t)
			}
		}
	}
	if len(tp.Initial) != tp.Places {
		return fmt.Errorf("initial marking has length %d, want %d: %w", len(tp.Initial), tp.Places, matrix.ErrDimMismatch)
	}
	for p, m := range tp.Initial {
		if m < 0 {
			return fmt.Errorf("initial marking of P%d is negative (%d)", p, m)
		}
	}
	if len(tp.Timed) != tp.Transitions {
		return fmt.Errorf("timed set has length %d, want %d: %w", len(tp.Timed), tp.Transitions, matrix.ErrDimMismatch)
	}

	for k, inv := range tp.PlaceInvariants {
		sum := 0
		for _, p := range inv.Places {
			if p < 0 || p >= tp.Places {
				return fmt.Errorf("place invariant %d references P%d: %w", k+1, p, matrix.ErrOutOfRange)
			}
			sum += tp.Initial[p]
		}
		if sum != inv.Sum {
			return fmt.Errorf("place invariant %d sums to %d at the initial marking, want %d", k+1, sum, inv.Sum)
		}
		// Every column must conserve the family.
		for t := 0; t < tp.Transitions; t++ {
			delta := 0
			for _, p := range inv.Places {
				delta += tp.Incidence[p][t]
			}
			if delta != 0 {
				return fmt.Errorf("firing T%d changes place invariant %d by %d", t, k+1, delta)
			}
		}
	}

	for j, inv := range tp.TransitionInvariants {
		for p := 0; p < tp.Places; p++ {
			delta := 0
			for _, t := range inv {
				if t < 0 || t >= tp.Transitions {
					return fmt.Errorf("transition invariant %d references T%d: %w", j+1, t, matrix.ErrOutOfRange)
				}
				delta += tp.Incidence[p][t]
			}
			if delta != 0 {
				return fmt.Errorf("transition invariant %d shifts P%d by %d", j+1, p, delta)
			}
		}
	}

	for profile, alphas := range tp.alphas {
		if len(alphas) != tp.Transitions {
			return fmt.Errorf("profile %q has %d bounds, want %d: %w", profile, len(alphas), tp.Transitions, matrix.ErrDimMismatch)
		}
		for t, a := range alphas {
			if a < 0 {
				return fmt.Errorf("profile %q has negative bound for T%d", profile, t)
			}
			if !tp.Timed[t] && a != 0 {
				return fmt.Errorf("profile %q times untimed transition T%d", profile, t)
			}
			if tp.Timed[t] && a == 0 {
				return fmt.Errorf("profile %q leaves timed transition T%d unbounded", profile, t)
			}
		}
	}
	return nil
}
