// Package policy decides which blocked worker the monitor wakes when it
// gives up the net. A policy sees the bitmask of transitions that are both
// fireable right now and awaited by at least one worker, plus the firing
// counters, and picks one index.
package policy

import "fmt"

// Policy picks one transition out of a candidate bitmask. The caller must
// still confirm the chosen queue has waiters; with an empty mask a policy
// may fall back to 0.
type Policy interface {
	Pick(candidates uint32, fires []int) int
	Name() string
}

// New returns the policy registered under name.
func New(name string) (Policy, error) {
	switch name {
	case "balanced":
		return Balanced{}, nil
	case "prioritized":
		return Prioritized{}, nil
	}
	return nil, fmt.Errorf("unknown policy %q", name)
}

// Balanced picks the candidate with the fewest firings so far, lowest index
// on ties. Over a full run this keeps branch selection roughly even.
type Balanced struct{}

// Name implements Policy.
func (Balanced) Name() string { return "balanced" }

// Pick implements Policy.
func (Balanced) Pick(candidates uint32, fires []int) int {
	best, bestFires := 0, -1
	for t := range fires {
		if candidates&(1<<t) == 0 {
			continue
		}
		if bestFires < 0 || fires[t] < bestFires {
			best, bestFires = t, fires[t]
		}
	}
	return best
}

// The agency net's decision points: T2/T3 split clients between the two
// agents, T6/T7 split payments between accepted and rejected.
const (
	firstAgent      = 2
	secondAgent     = 3
	paymentOK       = 6
	paymentRejected = 7

	firstAgentShare = 0.75
	paymentOKShare  = 0.80
)

// secondaryOrder is the scan order for transitions outside the two
// decision points.
var secondaryOrder = [...]int{0, 1, 4, 5, 8, 9, 10, 11}

// Prioritized steers the two decision points toward fixed shares: agent 1
// takes three clients in four, the cashier accepts four payments in five.
// Everything else is served in a fixed scan order.
type Prioritized struct{}

// Name implements Policy.
func (Prioritized) Name() string { return "prioritized" }

// Pick implements Policy.
func (Prioritized) Pick(candidates uint32, fires []int) int {
	agents := fires[firstAgent] + fires[secondAgent]
	if agents == 0 {
		agents = 1
	}
	payments := fires[paymentOK] + fires[paymentRejected]
	if payments == 0 {
		payments = 1
	}

	if candidates&(1<<firstAgent|1<<secondAgent) != 0 {
		share := float64(fires[firstAgent]) / float64(agents)
		if share <= firstAgentShare && candidates&(1<<firstAgent) != 0 {
			return firstAgent
		}
		if share > firstAgentShare && candidates&(1<<secondAgent) != 0 {
			return secondAgent
		}
	}

	if candidates&(1<<paymentOK|1<<paymentRejected) != 0 {
		share := float64(fires[paymentOK]) / float64(payments)
		if share <= paymentOKShare && candidates&(1<<paymentOK) != 0 {
			return paymentOK
		}
		if share > paymentOKShare && candidates&(1<<paymentRejected) != 0 {
			return paymentRejected
		}
	}

	for _, t := range secondaryOrder {
		if candidates&(1<<t) != 0 {
			return t
		}
	}
	return 0
}
