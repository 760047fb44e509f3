// Package sim assembles and runs a complete simulation: the net, the
// monitor, the worker ensemble and the final report.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/LaureanoOlocco/concurrency-lab/config"
	"github.com/LaureanoOlocco/concurrency-lab/core/monitor"
	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
	"github.com/LaureanoOlocco/concurrency-lab/core/policy"
)

// Simulation is a wired, ready-to-run instance.
type Simulation struct {
	cfg     config.Config
	net     *petri.Net
	mon     *monitor.Monitor
	workers []*Worker
	log     zerolog.Logger
}

// Build wires a simulation from a configuration: topology, engine, policy,
// monitor and one worker per configured role.
func Build(cfg config.Config, logger zerolog.Logger) (*Simulation, error) {
	topo := petri.Agency()
	if err := config.Validate(cfg, topo); err != nil {
		return nil, err
	}

	net, err := petri.NewNet(topo, cfg.AlphaProfile, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("building net: %w", err)
	}

	pol, err := policy.New(cfg.Policy)
	if err != nil {
		return nil, err
	}

	mon, err := monitor.New(monitor.Config{
		Net:            net,
		Policy:         pol,
		ExitTransition: cfg.ExitTransition,
		ExitCount:      cfg.ExitCount,
		Workers:        len(cfg.Workers),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building monitor: %w", err)
	}

	s := &Simulation{cfg: cfg, net: net, mon: mon, log: logger}
	for _, w := range cfg.Workers {
		s.workers = append(s.workers, NewWorker(w.Name, w.Transitions, logger))
	}
	return s, nil
}

// Net returns the simulation's engine, for inspection after the run.
func (s *Simulation) Net() *petri.Net { return s.net }

// Monitor returns the simulation's monitor.
func (s *Simulation) Monitor() *monitor.Monitor { return s.mon }

// Run starts every worker plus the report writer and waits for all of them.
// The writer is signalled by the monitor's termination latch, so the report
// captures the final state without polling.
func (s *Simulation) Run(ctx context.Context) error {
	s.log.Info().
		Str("policy", s.cfg.Policy).
		Str("alpha_profile", string(s.cfg.AlphaProfile)).
		Int("workers", len(s.workers)).
		Int("exit_count", s.cfg.ExitCount).
		Msg("simulation started")

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			return w.Run(ctx, s.mon)
		})
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.mon.Done():
		}
		if err := WriteReport(s.cfg.LogFile, s.net); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info().
		Int("firings", s.net.SequenceLen()).
		Str("log_file", s.cfg.LogFile).
		Msg("simulation complete")
	return nil
}
