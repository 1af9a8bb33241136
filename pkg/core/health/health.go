// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     health
// Description: Health check registry for datastores and runtime state
// License:     MIT
// ============================================================================

package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of a single check or of the whole report
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// severity orders statuses for aggregation; the report takes the worst.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 3
	default:
		return 2
	}
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (c funcChecker) Name() string                          { return c.name }
func (c funcChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// Func turns fn into a named Checker.
func Func(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

// Registry holds the checks of one service. Checks are keyed by name; a
// later Register with the same name replaces the earlier one.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	service  string
	version  string
	started  time.Time
}

// NewRegistry creates an empty registry for service.
func NewRegistry(service, version string) *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		service:  service,
		version:  version,
		started:  time.Now(),
	}
}

// Register adds checkers.
func (r *Registry) Register(checkers ...Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range checkers {
		r.checkers[c.Name()] = c
	}
}

// Unregister removes a checker.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// Names lists the registered checks in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check concurrently. Results are ordered by name and the
// report status is the worst individual status. A check that panics is
// reported unhealthy.
func (r *Registry) Check(ctx context.Context) *Report {
	names := r.Names()
	r.mu.RLock()
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = r.checkers[name]
	}
	r.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Service:   r.service,
		Version:   r.version,
		Status:    StatusHealthy,
		Uptime:    time.Since(r.started),
		Timestamp: time.Now(),
		Checks:    results,
	}
	for _, res := range results {
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
	}
	return report
}

func run(ctx context.Context, c Checker) (res CheckResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", p)}
		}
		if res.Name == "" {
			res.Name = c.Name()
		}
		if res.Status == "" {
			res.Status = StatusUnknown
		}
		res.Duration = time.Since(start)
		res.Timestamp = time.Now()
	}()
	return c.Check(ctx)
}

// Report is the aggregated result of a Registry.Check.
type Report struct {
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Status    Status        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Find returns the result of the named check.
func (r *Report) Find(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

func (r *Report) String() string {
	return fmt.Sprintf("%s %s: %s (%d checks, up %s)",
		r.Service, r.Version, r.Status, len(r.Checks), r.Uptime.Round(time.Second))
}

// Pinger is anything that can report its own reachability, such as a
// datastore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p.Ping fails or takes longer than
// timeout.
func PingCheck(name string, p Pinger, timeout time.Duration) Checker {
	return ErrorCheck(name, StatusUnhealthy, func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return p.Ping(ctx)
	})
}

// ErrorCheck wraps fn; a returned error yields failStatus with the error
// text as message.
func ErrorCheck(name string, failStatus Status, fn func(ctx context.Context) error) Checker {
	return Func(name, func(ctx context.Context) CheckResult {
		if err := fn(ctx); err != nil {
			return CheckResult{Name: name, Status: failStatus, Message: err.Error()}
		}
		return CheckResult{Name: name, Status: StatusHealthy}
	})
}

// AlwaysHealthy is a liveness check.
func AlwaysHealthy(name string) Checker {
	return Func(name, func(context.Context) CheckResult {
		return CheckResult{Name: name, Status: StatusHealthy}
	})
}
