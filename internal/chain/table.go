package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Step is one entry of a request or group: either a command
// (name + invoke + params) or the inclusion of a named group (use).
type Step struct {
	Use    string             `yaml:"use,omitempty"`
	Name   string             `yaml:"name,omitempty"`
	Invoke string             `yaml:"invoke,omitempty"`
	Params map[string]Binding `yaml:"params,omitempty"`
}

// Request is a named, ordered list of steps.
type Request struct {
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
	// Output names the context key returned to HTTP callers
	Output string `yaml:"output,omitempty"`
}

// UnmarshalYAML accepts either a bare list of steps or a mapping.
func (r *Request) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&r.Steps)
	}
	type plain Request
	return node.Decode((*plain)(r))
}

// Table is the routing table mapping request names to command lists.
type Table struct {
	Groups   map[string][]Step   `yaml:"groups"`
	Requests map[string]*Request `yaml:"requests"`
}

var bindingKeys = map[string]bool{
	"value": true, "from": true, "default": true,
	"filter": true, "filters": true, "required": true,
}

// UnmarshalYAML reads either a literal (scalar, list or free-form map) or a
// binding mapping built from value/from/default/filter/required.
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || !isBindingNode(node) {
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		*b = Literal(v)
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "value":
			var v any
			if err := val.Decode(&v); err != nil {
				return err
			}
			b.Value, b.HasValue = v, true
		case "default":
			var v any
			if err := val.Decode(&v); err != nil {
				return err
			}
			b.Default, b.HasDefault = v, true
		case "from":
			var spec string
			if err := val.Decode(&spec); err != nil {
				return err
			}
			sources, err := ParseSources(spec)
			if err != nil {
				return err
			}
			b.From = sources
		case "filter", "filters":
			if val.Kind == yaml.SequenceNode {
				var list []string
				if err := val.Decode(&list); err != nil {
					return err
				}
				b.Filters = append(b.Filters, list...)
			} else {
				b.Filters = append(b.Filters, val.Value)
			}
		case "required":
			if err := val.Decode(&b.Required); err != nil {
				return err
			}
		}
	}
	return nil
}

func isBindingNode(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		if !bindingKeys[node.Content[i].Value] {
			return false
		}
	}
	return true
}

// LoadTable reads a request table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.Wrap(err, "read request table").
			WithCode(verrors.CodeConfiguration).
			WithDetail("path", path)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, verrors.Wrap(err, "load request table").WithDetail("path", path)
	}
	return t, nil
}

// ParseTable decodes and validates a request table. Malformed steps,
// unknown groups and group inclusion cycles are configuration errors.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, verrors.Wrap(err, "parse request table").WithCode(verrors.CodeConfiguration)
	}
	if t.Groups == nil {
		t.Groups = make(map[string][]Step)
	}
	if t.Requests == nil {
		t.Requests = make(map[string]*Request)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) validate() error {
	check := func(owner string, steps []Step) error {
		for i, s := range steps {
			switch {
			case s.Use != "" && (s.Name != "" || s.Invoke != ""):
				return verrors.Configuration(fmt.Sprintf("%s step %d: use cannot be combined with name/invoke", owner, i))
			case s.Use == "" && (s.Name == "" || s.Invoke == ""):
				return verrors.Configuration(fmt.Sprintf("%s step %d: command steps need name and invoke", owner, i))
			}
		}
		return nil
	}

	for _, name := range sortedKeys(t.Groups) {
		if err := check("group "+name, t.Groups[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(t.Requests) {
		r := t.Requests[name]
		if r == nil {
			return verrors.Configuration(fmt.Sprintf("request %s is empty", name))
		}
		if err := check("request "+name, r.Steps); err != nil {
			return err
		}
	}

	// expanding every group and request surfaces cycles and dangling
	// references at load time
	for _, name := range sortedKeys(t.Groups) {
		if err := t.expandSteps(t.Groups[name], []string{name}, &[]CommandSpec{}); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(t.Requests) {
		if _, err := t.Expand(name); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether a request is defined.
func (t *Table) Has(request string) bool {
	_, ok := t.Requests[request]
	return ok
}

// RequestNames returns the defined request names, sorted.
func (t *Table) RequestNames() []string {
	return sortedKeys(t.Requests)
}

// OutputKey returns the context key a request declares as its output, or
// fallback when it declares none.
func (t *Table) OutputKey(request, fallback string) string {
	if r, ok := t.Requests[request]; ok && r.Output != "" {
		return r.Output
	}
	return fallback
}

// Expand flattens a request into its command list with every group
// inclusion replaced in place.
func (t *Table) Expand(request string) ([]CommandSpec, error) {
	r, ok := t.Requests[request]
	if !ok {
		return nil, verrors.Newf("unknown request %q", request).
			WithCode(verrors.CodeNotFound).
			WithDetail("request", request)
	}
	var out []CommandSpec
	if err := t.expandSteps(r.Steps, nil, &out); err != nil {
		return nil, verrors.Wrapf(err, "expand request %q", request).WithDetail("request", request)
	}
	return out, nil
}

func (t *Table) expandSteps(steps []Step, stack []string, out *[]CommandSpec) error {
	for _, s := range steps {
		if s.Use == "" {
			spec := CommandSpec{Name: s.Name, Target: s.Invoke, Bindings: s.Params}
			*out = append(*out, spec.clone())
			continue
		}

		for i, seen := range stack {
			if seen == s.Use {
				path := append(append([]string(nil), stack[i:]...), s.Use)
				return verrors.Configuration("group inclusion cycle: "+strings.Join(path, " -> ")).
					WithDetail("cycle", path)
			}
		}
		group, ok := t.Groups[s.Use]
		if !ok {
			return verrors.Configuration(fmt.Sprintf("unknown group %q", s.Use)).
				WithDetail("group", s.Use)
		}
		if err := t.expandSteps(group, append(stack, s.Use), out); err != nil {
			return err
		}
	}
	return nil
}

// Check verifies that every command target of every request is registered.
func (t *Table) Check(reg *Registry) error {
	for _, name := range t.RequestNames() {
		specs, err := t.Expand(name)
		if err != nil {
			return err
		}
		if err := reg.checkTargets(specs); err != nil {
			return verrors.Wrapf(err, "request %q", name)
		}
	}
	return nil
}
