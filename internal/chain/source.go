package chain

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Source kinds
const (
	SourceContext = "cxt"
	SourceArg     = "arg"
	SourceGet     = "get"
	SourcePost    = "post"
	SourceRequest = "request"
	SourceCookie  = "cookie"
	SourceHeader  = "header"
	SourceEnv     = "env"
)

var sourceAliases = map[string]string{
	"cxt":     SourceContext,
	"context": SourceContext,
	"arg":     SourceArg,
	"argv":    SourceArg,
	"get":     SourceGet,
	"query":   SourceGet,
	"post":    SourcePost,
	"form":    SourcePost,
	"request": SourceRequest,
	"cookie":  SourceCookie,
	"header":  SourceHeader,
	"env":     SourceEnv,
}

// Source names one place a parameter value can come from, e.g. "cxt:user"
// or "arg:2".
type Source struct {
	Kind string
	Key  string
}

// String implements fmt.Stringer
func (s Source) String() string {
	return s.Kind + ":" + s.Key
}

// External reports whether the source reads request input rather than the
// context.
func (s Source) External() bool {
	return s.Kind != SourceContext
}

// ParseSources parses a space separated list such as "get:id cxt:defaultId".
func ParseSources(spec string) ([]Source, error) {
	var out []Source
	for _, field := range strings.Fields(spec) {
		kind, key, ok := strings.Cut(field, ":")
		if !ok || key == "" {
			return nil, verrors.Configuration(fmt.Sprintf("malformed parameter source %q", field)).
				WithDetail("source", field)
		}
		canonical, known := sourceAliases[strings.ToLower(kind)]
		if !known {
			return nil, verrors.Configuration(fmt.Sprintf("unknown parameter source kind %q", kind)).
				WithDetail("source", field)
		}
		out = append(out, Source{Kind: canonical, Key: key})
	}
	return out, nil
}

// Input supplies values from outside the context: CLI arguments, HTTP
// query and form values, cookies, headers.
type Input interface {
	Lookup(kind, key string) (any, bool)
}

// MapInput is an Input backed by one map per source kind.
type MapInput map[string]map[string]any

// Lookup implements Input
func (m MapInput) Lookup(kind, key string) (any, bool) {
	if kind == SourceRequest {
		if v, ok := m.Lookup(SourceGet, key); ok {
			return v, true
		}
		return m.Lookup(SourcePost, key)
	}
	values, ok := m[kind]
	if !ok {
		return nil, false
	}
	v, ok := values[key]
	return v, ok
}

// Set stores a value for kind/key.
func (m MapInput) Set(kind, key string, value any) {
	if m[kind] == nil {
		m[kind] = make(map[string]any)
	}
	m[kind][key] = value
}

// ArgsInput serves positional command line arguments as arg:N, counting
// from zero.
type ArgsInput []string

// Lookup implements Input
func (a ArgsInput) Lookup(kind, key string) (any, bool) {
	if kind != SourceArg {
		return nil, false
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(a) {
		return nil, false
	}
	return a[i], true
}

// MultiInput consults several inputs in order.
type MultiInput []Input

// Lookup implements Input
func (m MultiInput) Lookup(kind, key string) (any, bool) {
	for _, in := range m {
		if in == nil {
			continue
		}
		if v, ok := in.Lookup(kind, key); ok {
			return v, true
		}
	}
	return nil, false
}

// EnvInput reads env:NAME from the process environment.
type EnvInput struct{}

// Lookup implements Input
func (EnvInput) Lookup(kind, key string) (any, bool) {
	if kind != SourceEnv {
		return nil, false
	}
	return os.LookupEnv(key)
}

// Binding is the request table's declaration of how one parameter is
// supplied.
type Binding struct {
	Value      any
	HasValue   bool
	From       []Source
	Default    any
	HasDefault bool
	Filters    []string
	Required   bool
}

// Literal returns a binding to a constant value.
func Literal(v any) Binding {
	return Binding{Value: v, HasValue: true}
}

// From returns a binding to the given sources, e.g. From("get:id cxt:id").
func From(spec string) (Binding, error) {
	sources, err := ParseSources(spec)
	if err != nil {
		return Binding{}, err
	}
	return Binding{From: sources}, nil
}

// WithDefault returns a copy of b with a default.
func (b Binding) WithDefault(v any) Binding {
	b.Default = v
	b.HasDefault = true
	return b
}

// CommandSpec is one expanded step of a request: the context key, the
// registered target and the parameter bindings.
type CommandSpec struct {
	Name     string
	Target   string
	Bindings map[string]Binding
}

func (s CommandSpec) clone() CommandSpec {
	out := CommandSpec{Name: s.Name, Target: s.Target, Bindings: make(map[string]Binding, len(s.Bindings))}
	for k, b := range s.Bindings {
		b.From = append([]Source(nil), b.From...)
		b.Filters = append([]string(nil), b.Filters...)
		out.Bindings[k] = b
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
