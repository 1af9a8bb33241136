// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     chain
// Description: Request execution: parameter resolution, command invocation,
//              context propagation and event hooks
// License:     MIT
// ============================================================================

package chain

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

const tracerName = "github.com/villain-cms/villain/internal/chain"

// Observer is notified about every executed step. Used for metrics.
type Observer interface {
	CommandExecuted(ctx context.Context, command, target string, d time.Duration)
	CommandFailed(ctx context.Context, command, target string, d time.Duration, err error)
	CommandSkipped(ctx context.Context, command, target string, d time.Duration, err error)
	RequestCompleted(ctx context.Context, request string, d time.Duration, err error)
}

// Executor runs requests from a Table against commands from a Registry.
type Executor struct {
	registry *Registry
	events   *EventBus
	filters  *ParamFilters
	logger   *logging.Logger
	tracer   trace.Tracer

	mu        sync.RWMutex
	table     *Table
	observers []Observer
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithEventBus sets the event bus shared with event handlers
func WithEventBus(b *EventBus) Option {
	return func(e *Executor) { e.events = b }
}

// WithParamFilters sets the parameter filter set
func WithParamFilters(pf *ParamFilters) Option {
	return func(e *Executor) { e.filters = pf }
}

// WithObserver adds an observer
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an executor. table may be nil when only Execute is
// used.
func NewExecutor(reg *Registry, table *Table, opts ...Option) *Executor {
	e := &Executor{registry: reg, table: table}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.events == nil {
		e.events = NewEventBus()
	}
	if e.filters == nil {
		e.filters = NewParamFilters()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Registry returns the command registry
func (e *Executor) Registry() *Registry { return e.registry }

// Events returns the event bus
func (e *Executor) Events() *EventBus { return e.events }

// ParamFilters returns the parameter filter set
func (e *Executor) ParamFilters() *ParamFilters { return e.filters }

// Table returns the current request table
func (e *Executor) Table() *Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

// SetTable swaps the request table. Requests already running keep the
// table they started with.
func (e *Executor) SetTable(t *Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = t
}

// AddObserver adds an observer after construction
func (e *Executor) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Executor) observersCopy() []Observer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Observer(nil), e.observers...)
}

// Run expands and executes a named request in a fresh context.
func (e *Executor) Run(ctx context.Context, request string, input Input) (*Context, error) {
	return e.RunWith(ctx, request, input, nil)
}

// RunWith is Run with initial context values.
func (e *Executor) RunWith(ctx context.Context, request string, input Input, initial map[string]any) (*Context, error) {
	table := e.Table()
	if table == nil {
		return nil, verrors.Configuration("no request table loaded")
	}

	ctx, span := e.tracer.Start(ctx, "request "+request,
		trace.WithAttributes(attribute.String("villain.request", request)))
	defer span.End()

	start := time.Now()
	c := NewContextWith(ctx, initial)
	log := e.logger.With("request", request, "request_id", c.RequestID)

	specs, err := table.Expand(request)
	if err == nil {
		err = e.Execute(c, specs, input)
	}

	d := time.Since(start)
	for _, o := range e.observersCopy() {
		o.RequestCompleted(ctx, request, d, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Request failed", "duration_ms", d.Milliseconds(), "error", err)
		return c, err
	}
	log.Info("Request completed",
		"duration_ms", d.Milliseconds(),
		"commands_executed", len(c.AuditLog()))
	return c, nil
}

// Execute runs already expanded specs in declaration order against c.
// Every target is checked before the first command runs. A soft failure
// is logged and the chain continues; any other error stops the chain and
// is returned.
func (e *Executor) Execute(c *Context, specs []CommandSpec, input Input) error {
	if err := e.registry.checkTargets(specs); err != nil {
		return err
	}

	for _, spec := range specs {
		if err := c.Context().Err(); err != nil {
			return verrors.Wrap(err, "request cancelled").WithCode(verrors.CodeInternal)
		}
		if err := e.step(c, spec, input); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) step(c *Context, spec CommandSpec, input Input) error {
	factory, _ := e.registry.Lookup(spec.Target)
	cmd := factory()

	ctx, span := e.tracer.Start(c.Context(), "command "+spec.Name,
		trace.WithAttributes(
			attribute.String("villain.command", spec.Name),
			attribute.String("villain.target", spec.Target),
		))
	defer span.End()

	log := e.logger.With("command", spec.Name, "target", spec.Target, "request_id", c.RequestID)
	start := time.Now()

	fail := func(err error) error {
		d := time.Since(start)
		c.AddAuditEntry(AuditEntry{Command: spec.Name, Target: spec.Target, Duration: d, Error: err})
		for _, o := range e.observersCopy() {
			o.CommandFailed(ctx, spec.Name, spec.Target, d, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if verrors.GetCode(err) == verrors.CodeUnknown || verrors.GetSeverity(err).ShouldAlert() {
			log.Error("Command failed", "duration_ms", d.Milliseconds(), "error", err)
		} else {
			log.Warn("Command rejected", "duration_ms", d.Milliseconds(), "error", err)
		}
		return verrors.Wrapf(err, "command %q", spec.Name).
			WithDetail("command", spec.Name).
			WithOperation("chain.execute")
	}

	if err := e.events.Fire(&Event{Name: EventBeforeCommand, CommandName: spec.Name, Context: c}); err != nil {
		return fail(err)
	}

	params, err := ResolveParams(cmd.Expects(), spec, c, input, e.filters)
	if err != nil {
		return fail(err)
	}

	inv := &Invocation{
		Name:    spec.Name,
		Target:  spec.Target,
		Params:  params,
		Context: c,
		Logger:  log,
		events:  e.events,
	}
	result, err := cmd.Execute(inv)
	if err != nil {
		if verrors.IsSoft(err) {
			d := time.Since(start)
			c.AddAuditEntry(AuditEntry{Command: spec.Name, Target: spec.Target, Duration: d, Error: err, Skipped: true})
			for _, o := range e.observersCopy() {
				o.CommandSkipped(ctx, spec.Name, spec.Target, d, err)
			}
			span.AddEvent("soft failure", trace.WithAttributes(attribute.String("error", err.Error())))
			log.Warn("Command skipped after soft failure", "error", err)
			return nil
		}
		return fail(err)
	}

	c.Add(spec.Name, result)

	if err := e.events.Fire(&Event{Name: EventAfterCommand, CommandName: spec.Name, Context: c,
		Data: map[string]any{"result": result}}); err != nil {
		return fail(err)
	}

	d := time.Since(start)
	c.AddAuditEntry(AuditEntry{Command: spec.Name, Target: spec.Target, Duration: d})
	for _, o := range e.observersCopy() {
		o.CommandExecuted(ctx, spec.Name, spec.Target, d)
	}
	log.Debug("Command executed", "duration_ms", d.Milliseconds())
	return nil
}

// RunCommand executes a single command in isolation. Every entry of params
// is bound as a literal and initial pre-populates the context. It returns
// the command result and the context it ran in.
func RunCommand(ctx context.Context, cmd Command, params map[string]any, initial map[string]any, opts ...Option) (any, *Context, error) {
	const name = "command"
	reg := NewRegistry()
	reg.MustRegister(name, func() Command { return cmd })

	bindings := make(map[string]Binding, len(params))
	for k, v := range params {
		bindings[k] = Literal(v)
	}

	e := NewExecutor(reg, nil, opts...)
	c := NewContextWith(ctx, initial)
	err := e.Execute(c, []CommandSpec{{Name: name, Target: name, Bindings: bindings}}, nil)
	return c.Get(name), c, err
}
