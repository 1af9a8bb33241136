package filters

import (
	"context"
	"fmt"
	"strings"

	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/pkg/core/cache"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// DefaultCollection holds filter chains unless configured otherwise.
const DefaultCollection = "filters"

// Step is one transformer of a chain with its init argument.
type Step struct {
	Filter string `json:"filter" yaml:"filter"`
	Arg    any    `json:"arg,omitempty" yaml:"arg,omitempty"`
}

// Chain is the persisted record {name, chain: [{filter, arg}...]}.
type Chain struct {
	Name  string `json:"name"`
	Steps []Step `json:"chain"`
}

func (c Chain) document() datastore.Document {
	steps := make([]any, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = map[string]any{"filter": s.Filter, "arg": s.Arg}
	}
	return datastore.Document{"name": c.Name, "chain": steps}
}

func chainFromDocument(doc datastore.Document) (Chain, error) {
	c := Chain{}
	c.Name, _ = doc["name"].(string)
	raw, ok := doc["chain"].([]any)
	if !ok && doc["chain"] != nil {
		return c, verrors.Newf("filter chain %q is malformed", c.Name).
			WithCode(verrors.CodeInvalidInput).
			WithDetail("chain", c.Name)
	}
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return c, verrors.Newf("filter chain %q step %d is malformed", c.Name, i).
				WithCode(verrors.CodeInvalidInput).
				WithDetail("chain", c.Name)
		}
		id, _ := m["filter"].(string)
		c.Steps = append(c.Steps, Step{Filter: id, Arg: m["arg"]})
	}
	return c, nil
}

// Manager runs and maintains the chains stored in one collection.
type Manager struct {
	coll     datastore.Collection
	registry *Registry
	logger   *logging.Logger

	chains *cache.Cache[Chain]
	prefix string
}

// NewManager creates a manager over coll. A nil registry uses the
// built-in transformers.
func NewManager(coll datastore.Collection, registry *Registry, logger *logging.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{coll: coll, registry: registry, logger: logger}
}

// WithCache serves chain lookups from c. Managers sharing a cache must use
// distinct prefixes per collection; writes through any of them invalidate
// the entry.
func (m *Manager) WithCache(c *cache.Cache[Chain], prefix string) *Manager {
	m.chains = c
	m.prefix = prefix
	return m
}

func (m *Manager) forget(name string) {
	if m.chains != nil {
		m.chains.Delete(m.prefix + name)
	}
}

// Registry returns the transformer registry
func (m *Manager) Registry() *Registry { return m.registry }

// Collection returns the backing collection name
func (m *Manager) Collection() string { return m.coll.Name() }

// Chain loads a stored chain.
func (m *Manager) Chain(ctx context.Context, name string) (Chain, error) {
	if m.chains == nil {
		return m.load(ctx, name)
	}
	return m.chains.GetOrSet(m.prefix+name, func() (Chain, error) {
		return m.load(ctx, name)
	})
}

func (m *Manager) load(ctx context.Context, name string) (Chain, error) {
	doc, err := m.coll.FindOne(ctx, datastore.Query{"name": name})
	if err != nil {
		return Chain{}, verrors.StorageOperation("filters.load", err).WithDetail("chain", name)
	}
	if doc == nil {
		return Chain{}, verrors.UnknownChain(name)
	}
	return chainFromDocument(doc)
}

// Run applies the named chain to value. As soon as an intermediate result
// is empty it is returned without running the remaining transformers.
func (m *Manager) Run(ctx context.Context, name, value string) (string, error) {
	c, err := m.Chain(ctx, name)
	if err != nil {
		return "", err
	}
	for _, step := range c.Steps {
		f, err := m.registry.New(step.Filter, step.Arg)
		if err != nil {
			return "", verrors.Wrapf(err, "filter chain %q", name).WithDetail("chain", name)
		}
		value = f.Run(value)
		if value == "" {
			return "", nil
		}
	}
	return value, nil
}

// AddChain stores a chain. An existing chain is replaced when overwrite is
// set and rejected with a DuplicateChain error otherwise.
func (m *Manager) AddChain(ctx context.Context, name string, steps []Step, overwrite bool) error {
	if name == "" {
		return verrors.New("filter chain needs a name").WithCode(verrors.CodeInvalidInput)
	}
	for i, s := range steps {
		if !m.registry.Has(s.Filter) {
			return verrors.Newf("filter chain %q step %d: unknown filter %q", name, i, s.Filter).
				WithCode(verrors.CodeConfiguration).
				WithDetail("chain", name).
				WithDetail("filter", s.Filter)
		}
		if err := checkArg(s.Arg); err != nil {
			return verrors.Wrapf(err, "filter chain %q step %d", name, i).
				WithCode(verrors.CodeInvalidInput).
				WithDetail("chain", name)
		}
	}

	existing, err := m.coll.FindOne(ctx, datastore.Query{"name": name})
	if err != nil {
		return verrors.StorageOperation("filters.add", err).WithDetail("chain", name)
	}
	doc := Chain{Name: name, Steps: steps}.document()
	if existing != nil {
		if !overwrite {
			return verrors.DuplicateChain(name)
		}
		doc[datastore.IDField] = existing.ID()
	}
	if _, err := m.coll.Save(ctx, doc); err != nil {
		return verrors.StorageOperation("filters.add", err).WithDetail("chain", name)
	}
	m.forget(name)
	m.logger.Debug("Filter chain stored", "chain", name, "steps", len(steps), "replaced", existing != nil)
	return nil
}

// RemoveChain deletes a chain. The delete is not confirmed: failures are
// logged and otherwise ignored, and removing a missing chain is not an
// error.
func (m *Manager) RemoveChain(ctx context.Context, name string) {
	m.forget(name)
	if err := m.coll.Remove(ctx, datastore.Query{"name": name}); err != nil {
		m.logger.Error("Filter chain removal failed", "chain", name, "error", err)
	}
}

// HasChain reports whether a chain is stored.
func (m *Manager) HasChain(ctx context.Context, name string) (bool, error) {
	doc, err := m.coll.FindOne(ctx, datastore.Query{"name": name})
	if err != nil {
		return false, verrors.StorageOperation("filters.has", err).WithDetail("chain", name)
	}
	return doc != nil, nil
}

// Chains lists stored chains sorted by name.
func (m *Manager) Chains(ctx context.Context) ([]Chain, error) {
	docs, err := m.coll.Find(ctx, datastore.Query{}, datastore.FindOptions{Sort: datastore.ParseSort("name")})
	if err != nil {
		return nil, verrors.StorageOperation("filters.list", err)
	}
	out := make([]Chain, 0, len(docs))
	for _, doc := range docs {
		c, err := chainFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseSteps reads steps in the compact "filter" or "filter=arg" form used
// on the command line.
func ParseSteps(specs []string) []Step {
	steps := make([]Step, 0, len(specs))
	for _, s := range specs {
		id, arg, found := strings.Cut(s, "=")
		if !found {
			steps = append(steps, Step{Filter: id})
			continue
		}
		steps = append(steps, Step{Filter: id, Arg: arg})
	}
	return steps
}

// String implements fmt.Stringer
func (c Chain) String() string {
	var b strings.Builder
	b.WriteString(c.Name + ":")
	for _, s := range c.Steps {
		if s.Arg == nil {
			b.WriteString(" " + s.Filter)
			continue
		}
		fmt.Fprintf(&b, " %s(%v)", s.Filter, s.Arg)
	}
	return b.String()
}
