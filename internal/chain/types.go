package chain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Command is one executable unit of a request. Commands are created fresh
// for every invocation by their Factory.
type Command interface {
	// Expects declares parameters, events and the result of the command
	Expects() *Definition

	// Execute runs the command. The returned value is stored in the
	// context under the step name.
	Execute(inv *Invocation) (any, error)
}

// Factory creates a Command instance.
type Factory func() Command

// Func adapts a plain function to the Command interface.
func Func(def *Definition, fn func(inv *Invocation) (any, error)) Command {
	return &funcCommand{def: def, fn: fn}
}

type funcCommand struct {
	def *Definition
	fn  func(inv *Invocation) (any, error)
}

func (c *funcCommand) Expects() *Definition               { return c.def }
func (c *funcCommand) Execute(inv *Invocation) (any, error) { return c.fn(inv) }

// ParamDef describes one parameter a command accepts
type ParamDef struct {
	Name        string
	Description string
	Required    bool
	Default     any
	HasDefault  bool
	Filters     []string
}

// EventDef describes an event a command may fire
type EventDef struct {
	Name        string
	Description string
}

// Definition is a command's self description, built fluently:
//
//	chain.Describe("Load content").
//		UsesParam("id", "Document id").Required().
//		UsesParam("collection", "Collection").HasDefault("content").
//		DeclaresEvent("onLoad", "Fired after loading").
//		Returns("The loaded document")
type Definition struct {
	Description string
	Params      []*ParamDef
	Events      []EventDef
	ReturnDesc  string

	last *ParamDef
}

// Describe starts a new Definition.
func Describe(description string) *Definition {
	return &Definition{Description: description}
}

// UsesParam declares a parameter. Subsequent Required, HasDefault and
// WithFilter calls apply to it.
func (d *Definition) UsesParam(name, description string) *Definition {
	p := &ParamDef{Name: name, Description: description}
	d.Params = append(d.Params, p)
	d.last = p
	return d
}

// Required marks the last declared parameter as required.
func (d *Definition) Required() *Definition {
	if d.last != nil {
		d.last.Required = true
	}
	return d
}

// HasDefault sets the default of the last declared parameter.
func (d *Definition) HasDefault(value any) *Definition {
	if d.last != nil {
		d.last.Default = value
		d.last.HasDefault = true
	}
	return d
}

// WithFilter adds a parameter filter (see ParamFilters) to the last
// declared parameter.
func (d *Definition) WithFilter(spec string) *Definition {
	if d.last != nil {
		d.last.Filters = append(d.last.Filters, spec)
	}
	return d
}

// DeclaresEvent documents an event the command fires.
func (d *Definition) DeclaresEvent(name, description string) *Definition {
	d.Events = append(d.Events, EventDef{Name: name, Description: description})
	return d
}

// Returns documents the command result.
func (d *Definition) Returns(description string) *Definition {
	d.ReturnDesc = description
	return d
}

// Param looks up a declared parameter.
func (d *Definition) Param(name string) (*ParamDef, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// String renders the definition as help text.
func (d *Definition) String() string {
	var b strings.Builder
	b.WriteString(d.Description)
	b.WriteString("\n")
	for _, p := range d.Params {
		fmt.Fprintf(&b, "  %s: %s", p.Name, p.Description)
		if p.Required {
			b.WriteString(" (required)")
		}
		if p.HasDefault {
			fmt.Fprintf(&b, " [default: %v]", p.Default)
		}
		b.WriteString("\n")
	}
	for _, e := range d.Events {
		fmt.Fprintf(&b, "  event %s: %s\n", e.Name, e.Description)
	}
	if d.ReturnDesc != "" {
		fmt.Fprintf(&b, "  returns: %s\n", d.ReturnDesc)
	}
	return b.String()
}

// Params holds the resolved parameters of one invocation.
type Params map[string]any

// Get returns a parameter or nil.
func (p Params) Get(name string) any {
	return p[name]
}

// Has reports whether a parameter resolved to a non-nil value.
func (p Params) Has(name string) bool {
	return p[name] != nil
}

// String returns a parameter as a string; nil becomes "".
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns a parameter as an int, or def when it is missing or not
// numeric.
func (p Params) Int(name string, def int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a parameter as a bool.
func (p Params) Bool(name string) bool {
	switch v := p[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case int:
		return v != 0
	}
	return false
}

// Map returns a parameter as a map, or nil.
func (p Params) Map(name string) map[string]any {
	switch v := p[name].(type) {
	case map[string]any:
		return v
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	}
	return nil
}

// Strings returns a parameter as a list of strings. A single string is
// split on commas.
func (p Params) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AuditEntry records a single command execution
type AuditEntry struct {
	Command  string        `json:"command"`
	Target   string        `json:"target"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"error,omitempty"`
	Skipped  bool          `json:"skipped"`
}
