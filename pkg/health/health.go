// Package health runs registered dependency checks concurrently and serves
// liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	name     string
	check    Check
	optional bool
}

// Checker holds named checks. Required checks that fail bring the report
// down; optional ones only degrade it.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]registration)}
}

// Register adds a required check, replacing any check of the same name.
func (c *Checker) Register(name string, check Check) { c.add(name, check, false) }

// RegisterOptional adds a check whose failure only degrades readiness.
func (c *Checker) RegisterOptional(name string, check Check) { c.add(name, check, true) }

func (c *Checker) add(name string, check Check, optional bool) {
	c.mu.Lock()
	c.checks[name] = registration{name: name, check: check, optional: optional}
	c.mu.Unlock()
}

// Ping adapts a ping function into a Check.
func Ping(fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := fn(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

func (c *Checker) snapshot() []registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	regs := make([]registration, 0, len(c.checks))
	for _, r := range c.checks {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].name < regs[j].name })
	return regs
}

// Run executes every check concurrently and folds the results into one
// report.
func (c *Checker) Run(ctx context.Context) Report {
	regs := c.snapshot()
	results := make([]ComponentHealth, len(regs))

	var g errgroup.Group
	for i, r := range regs {
		g.Go(func() error {
			start := time.Now()
			res := r.check(ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(regs)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, r := range regs {
		report.Components[r.name] = results[i]
		report.Status = worse(report.Status, results[i].Status, r.optional)
	}
	return report
}

func worse(current, got Status, optional bool) Status {
	switch {
	case current == StatusDown, got == StatusUp:
		return current
	case got == StatusDown && !optional:
		return StatusDown
	default:
		return StatusDegraded
	}
}

// LiveHandler always answers 200 while the process is serving.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when a required check is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
