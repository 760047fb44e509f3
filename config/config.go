// Package config loads the simulation definition: which policy and timing
// profile drive the run, the termination condition, and the worker roster.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
)

const (
	PolicyBalanced    = "balanced"
	PolicyPrioritized = "prioritized"
)

// Worker is one simulated process: a name and the transitions it requests,
// in order, over and over until termination.
type Worker struct {
	Name        string
	Transitions []int
}

// Config is a validated simulation definition.
type Config struct {
	Policy         string
	AlphaProfile   petri.AlphaProfile
	ExitTransition int
	ExitCount      int
	LogFile        string
	Workers        []Worker
}

// Default returns the modeled instance: balanced policy, fast profile, six
// worker roles covering the whole agency, termination after 186 departures.
func Default() Config {
	return Config{
		Policy:         PolicyBalanced,
		AlphaProfile:   petri.ProfileFast,
		ExitTransition: 11,
		ExitCount:      186,
		LogFile:        "simulation.log",
		Workers: []Worker{
			{Name: "entrance", Transitions: []int{0, 1}},
			{Name: "agent-1", Transitions: []int{2, 5}},
			{Name: "agent-2", Transitions: []int{3, 4}},
			{Name: "payments-ok", Transitions: []int{6, 9, 10}},
			{Name: "payments-rejected", Transitions: []int{7, 8}},
			{Name: "checkout", Transitions: []int{11}},
		},
	}
}

// simulationYAML mirrors the file structure.
type simulationYAML struct {
	Simulation struct {
		Policy         string       `yaml:"policy,omitempty"`
		AlphaProfile   string       `yaml:"alpha_profile,omitempty"`
		ExitTransition *int         `yaml:"exit_transition,omitempty"`
		ExitCount      *int         `yaml:"exit_count,omitempty"`
		LogFile        string       `yaml:"log_file,omitempty"`
		Workers        []workerYAML `yaml:"workers,omitempty"`
	} `yaml:"simulation"`
}

type workerYAML struct {
	Name        string `yaml:"name"`
	Transitions []int  `yaml:"transitions"`
}

// ParseFile parses a YAML simulation file. Absent keys keep their defaults.
func ParseFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML simulation data. Absent keys keep their defaults.
func Parse(data []byte) (Config, error) {
	var raw simulationYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := Default()
	s := raw.Simulation
	if s.Policy != "" {
		cfg.Policy = s.Policy
	}
	if s.AlphaProfile != "" {
		cfg.AlphaProfile = petri.AlphaProfile(s.AlphaProfile)
	}
	if s.ExitTransition != nil {
		cfg.ExitTransition = *s.ExitTransition
	}
	if s.ExitCount != nil {
		cfg.ExitCount = *s.ExitCount
	}
	if s.LogFile != "" {
		cfg.LogFile = s.LogFile
	}
	if len(s.Workers) > 0 {
		cfg.Workers = make([]Worker, len(s.Workers))
		for i, w := range s.Workers {
			cfg.Workers[i] = Worker{Name: w.Name, Transitions: w.Transitions}
		}
	}

	if err := Validate(cfg, petri.Agency()); err != nil {
		return Config{}, fmt.Errorf("simulation validation failed: %w", err)
	}
	return cfg, nil
}

// Validate ensures a configuration is internally consistent and fits the
// topology it will run against.
func Validate(cfg Config, topo *petri.Topology) error {
	switch cfg.Policy {
	case PolicyBalanced, PolicyPrioritized:
	default:
		return fmt.Errorf("unknown policy %q", cfg.Policy)
	}

	if _, err := topo.Alphas(cfg.AlphaProfile); err != nil {
		return err
	}

	if cfg.ExitTransition < 0 || cfg.ExitTransition >= topo.Transitions {
		return fmt.Errorf("exit transition %d outside [0,%d)", cfg.ExitTransition, topo.Transitions)
	}
	if cfg.ExitCount <= 0 {
		return fmt.Errorf("exit count must be positive, got %d", cfg.ExitCount)
	}
	if cfg.LogFile == "" {
		return fmt.Errorf("log file cannot be empty")
	}

	if len(cfg.Workers) == 0 {
		return fmt.Errorf("at least one worker is required")
	}
	names := make(map[string]struct{})
	exitCovered := false
	for _, w := range cfg.Workers {
		if w.Name == "" {
			return fmt.Errorf("worker name cannot be empty")
		}
		if _, exists := names[w.Name]; exists {
			return fmt.Errorf("duplicate worker name: %s", w.Name)
		}
		names[w.Name] = struct{}{}
		if len(w.Transitions) == 0 {
			return fmt.Errorf("worker %s has no transitions", w.Name)
		}
		for _, t := range w.Transitions {
			if t < 0 || t >= topo.Transitions {
				return fmt.Errorf("worker %s references transition %d outside [0,%d)", w.Name, t, topo.Transitions)
			}
			if t == cfg.ExitTransition {
				exitCovered = true
			}
		}
	}
	if !exitCovered {
		return fmt.Errorf("no worker requests the exit transition %d, the simulation would never end", cfg.ExitTransition)
	}
	return nil
}
