package filters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/pkg/core/cache"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

func newTestManager(t *testing.T) (*Manager, datastore.Collection) {
	t.Helper()
	coll := datastore.NewMemory().Collection(DefaultCollection)
	return NewManager(coll, NewRegistry(), nil), coll
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		id   string
		arg  any
		in   string
		want string
	}{
		{Null, nil, "<b>x</b>", "<b>x</b>"},
		{Plaintext, nil, "<script>alert(1)</script>Hello <b>World</b>\x01é", "Hello World"},
		{EscapeMarkup, nil, `<a href="x">é</a>`, "&#60;a href=&#34;x&#34;&#62;&#233;&#60;/a&#62;"},
		{WhitelistTags, nil, `<p onclick="x()">Hi <em>there</em><script>bad()</script></p>`, "<p>Hi <em>there</em></p>"},
		{WhitelistTags, []any{"b"}, "<b>bold</b> <i>it</i>", "<b>bold</b> it"},
		{Lowercase, nil, "MiXeD", "mixed"},
		{Trim, nil, "  pad  ", "pad"},
		{ShortenText, map[string]any{"max": 12, "append": "..."}, "the quick brown fox", "the quick..."},
		{ShortenText, 9.0, "the quick brown", "the quick"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			f, err := r.New(tt.id, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Run(tt.in))
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("rot13", nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))

	_, err = r.New(ShortenText, "many")
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))

	_, err = r.New(WhitelistTags, 42)
	assert.Error(t, err)
	assert.Contains(t, r.Names(), Plaintext)
}

func TestManager_Run(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AddChain(ctx, "clean", []Step{{Filter: Trim}, {Filter: Lowercase}}, true))
	out, err := m.Run(ctx, "clean", "  HELLO ")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestManager_UnknownChain(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Run(context.Background(), "missing", "x")
	assert.True(t, verrors.HasCode(err, verrors.CodeUnknownChain))
	name, _ := verrors.GetDetail(err, "chain")
	assert.Equal(t, "missing", name)
}

func TestManager_EmptyValueShortCircuits(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	var secondCalls atomic.Int32
	m.Registry().Register("empty", func(any) (Filter, error) {
		return FilterFunc(func(string) string { return "" }), nil
	})
	m.Registry().Register("count", func(any) (Filter, error) {
		return FilterFunc(func(s string) string {
			secondCalls.Add(1)
			return s + "!"
		}), nil
	})

	require.NoError(t, m.AddChain(ctx, "failfast", []Step{{Filter: "empty"}, {Filter: "count"}}, true))
	out, err := m.Run(ctx, "failfast", "value")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, int32(0), secondCalls.Load())
}

func TestManager_AddChainOverwrite(t *testing.T) {
	ctx := context.Background()
	m, coll := newTestManager(t)

	require.NoError(t, m.AddChain(ctx, "c", []Step{{Filter: Trim}}, true))
	require.NoError(t, m.AddChain(ctx, "c", []Step{{Filter: Lowercase}}, true))

	docs, err := coll.Find(ctx, datastore.Query{"name": "c"}, datastore.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 1, "overwrite must replace, not duplicate")

	err = m.AddChain(ctx, "c", []Step{{Filter: Null}}, false)
	assert.True(t, verrors.HasCode(err, verrors.CodeDuplicateChain))

	c, err := m.Chain(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []Step{{Filter: Lowercase}}, c.Steps)
}

func TestManager_AddChainValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	err := m.AddChain(ctx, "bad", []Step{{Filter: "nope"}}, true)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))

	err = m.AddChain(ctx, "bad", []Step{{Filter: Null, Arg: struct{}{}}}, true)
	assert.True(t, verrors.HasCode(err, verrors.CodeInvalidInput))

	err = m.AddChain(ctx, "bad", []Step{{Filter: Null, Arg: []any{map[string]any{}}}}, true)
	assert.Error(t, err)

	assert.NoError(t, m.AddChain(ctx, "ok", []Step{{Filter: ShortenText, Arg: map[string]any{"max": 10, "append": "…"}}}, true))
}

func TestManager_RemoveAndList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AddChain(ctx, "b", []Step{{Filter: Trim}}, true))
	require.NoError(t, m.AddChain(ctx, "a", []Step{{Filter: Null}}, true))

	chains, err := m.Chains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 2)
	assert.Equal(t, "a", chains[0].Name)
	assert.Equal(t, "a: null", chains[0].String())

	m.RemoveChain(ctx, "a")
	m.RemoveChain(ctx, "never-existed")

	has, err := m.HasChain(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)
	has, _ = m.HasChain(ctx, "b")
	assert.True(t, has)
}

type failingCollection struct {
	datastore.Collection
}

func (failingCollection) Remove(context.Context, datastore.Query) error {
	return errors.New("disk on fire")
}

func TestManager_RemoveChainIsFireAndForget(t *testing.T) {
	coll := failingCollection{datastore.NewMemory().Collection(DefaultCollection)}
	m := NewManager(coll, nil, nil)
	assert.NotPanics(t, func() { m.RemoveChain(context.Background(), "x") })
}

func TestParseSteps(t *testing.T) {
	steps := ParseSteps([]string{"trim", "shorten=20", "whitelist_tags=b,i"})
	assert.Equal(t, []Step{
		{Filter: "trim"},
		{Filter: "shorten", Arg: "20"},
		{Filter: "whitelist_tags", Arg: "b,i"},
	}, steps)

	r := NewRegistry()
	f, err := r.New(steps[2].Filter, steps[2].Arg)
	require.NoError(t, err)
	assert.Equal(t, "<b>x</b>y", f.Run("<b>x</b><p>y</p>"))
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	sources := datastore.NewSources()
	sources.Add("default", datastore.NewMemory(), true)

	fc := &Commands{Sources: sources, Registry: NewRegistry()}
	m, err := fc.Manager("", "")
	require.NoError(t, err)
	require.NoError(t, m.AddChain(ctx, "plain", []Step{{Filter: Plaintext}}, true))

	reg := chain.NewRegistry()
	require.NoError(t, fc.Register(reg))

	tbl, err := chain.ParseTable([]byte(`
requests:
  filter:
    - name: filters
      invoke: filters.Initialize
    - name: clean
      invoke: filters.Run
      params:
        manager: {from: "cxt:filters"}
        chain: plain
        value: {from: "get:text"}
`))
	require.NoError(t, err)

	input := chain.MapInput{}
	input.Set(chain.SourceGet, "text", "<i>hi</i>")
	c, err := chain.NewExecutor(reg, tbl).Run(ctx, "filter", input)
	require.NoError(t, err)
	assert.IsType(t, &Manager{}, c.Get("filters"))
	assert.Equal(t, "hi", c.Get("clean"))
}

func TestCommands_SharedCache(t *testing.T) {
	ctx := context.Background()
	mem := datastore.NewMemory()
	sources := datastore.NewSources()
	sources.Add("default", mem, true)

	c := cache.New[Chain](cache.DefaultConfig())
	t.Cleanup(c.Close)
	fc := &Commands{Sources: sources, Registry: NewRegistry(), Cache: c}

	writer, err := fc.Manager("default", "")
	require.NoError(t, err)
	reader, err := fc.Manager("", DefaultCollection)
	require.NoError(t, err)

	require.NoError(t, writer.AddChain(ctx, "x", []Step{{Filter: Lowercase}}, false))
	out, err := reader.Run(ctx, "x", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
	assert.Equal(t, 1, c.Len())

	// A write behind the managers' back is not seen until invalidated.
	_, err = mem.Collection(DefaultCollection).Save(ctx, Chain{Name: "x", Steps: []Step{{Filter: Null}}}.document())
	require.NoError(t, err)
	out, err = reader.Run(ctx, "x", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "abc", out)

	require.NoError(t, writer.AddChain(ctx, "x", []Step{{Filter: Trim}}, true))
	out, err = reader.Run(ctx, "x", " ABC ")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	writer.RemoveChain(ctx, "x")
	_, err = reader.Run(ctx, "x", "ABC")
	assert.True(t, verrors.HasCode(err, verrors.CodeUnknownChain))
}

func TestBindParamFilter(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	require.NoError(t, m.AddChain(ctx, "lower", []Step{{Filter: Lowercase}}, true))

	pf := chain.NewParamFilters()
	BindParamFilter(pf, m)

	out, err := pf.Apply("chain:lower", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "abc", out)

	_, err = pf.Apply("chain:", "x")
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = pf.ApplyContext(cancelled, "chain:lower", "ABC")
	assert.ErrorIs(t, err, context.Canceled)
}
