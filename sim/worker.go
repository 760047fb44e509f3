package sim

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/LaureanoOlocco/concurrency-lab/core/monitor"
)

// Worker is one simulated process. It walks its transition list in order,
// wrapping around, and asks the monitor to fire each one; the monitor
// blocks it until the transition fires or the simulation ends.
type Worker struct {
	Name        string
	Transitions []int

	fired int
	log   zerolog.Logger
}

// NewWorker creates a worker for the given transitions.
func NewWorker(name string, transitions []int, logger zerolog.Logger) *Worker {
	return &Worker{
		Name:        name,
		Transitions: transitions,
		log:         logger.With().Str("worker", name).Logger(),
	}
}

// Fired returns how many firings the worker completed.
func (w *Worker) Fired() int { return w.fired }

// Run drives the worker until it observes termination or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, mon *monitor.Monitor) error {
	w.log.Debug().Ints("transitions", w.Transitions).Msg("worker started")
	for i := 0; ; i = (i + 1) % len(w.Transitions) {
		t := w.Transitions[i]
		ok, err := mon.Fire(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			w.log.Debug().Int("fired", w.fired).Msg("worker finished")
			return nil
		}
		w.fired++
	}
}
