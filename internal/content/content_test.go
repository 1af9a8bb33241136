package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

type article struct {
	storage.Decorator
}

func newArticle(title string) *article {
	a := &article{Decorator: storage.NewDecorator(nil)}
	if title != "" {
		a.Set("title", title)
	}
	return a
}

func (a *article) StorableType() string { return "content.testArticle" }

func init() {
	storage.RegisterType("content.testArticle", func() storage.Storable { return newArticle("") })
}

func newCommands() (*Commands, *datastore.Memory) {
	mem := datastore.NewMemory()
	sources := datastore.NewSources()
	sources.Add("default", mem, true)
	return &Commands{Sources: sources}, mem
}

func run(t *testing.T, cmd chain.Command, params map[string]any, bus *chain.EventBus) (any, error) {
	t.Helper()
	var opts []chain.Option
	if bus != nil {
		opts = append(opts, chain.WithEventBus(bus))
	}
	out, _, err := chain.RunCommand(context.Background(), cmd, params, nil, opts...)
	return out, err
}

func save(t *testing.T, cc *Commands, s storage.Storable, extra map[string]any) storage.Storable {
	t.Helper()
	params := map[string]any{"content": s}
	for k, v := range extra {
		params[k] = v
	}
	out, err := run(t, chain.Func(saveDef(), cc.save), params, nil)
	require.NoError(t, err)
	return out.(storage.Storable)
}

func TestSaveAndLoad_RestoresConcreteType(t *testing.T) {
	cc, _ := newCommands()

	saved := save(t, cc, newArticle("Hello"), nil)
	a, ok := saved.(*article)
	require.True(t, ok)
	id := a.GetString(datastore.IDField)
	require.Len(t, id, 24)

	out, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": id}, nil)
	require.NoError(t, err)
	loaded, ok := out.(*article)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, "Hello", loaded.GetString("title"))
	assert.Equal(t, id, loaded.GetString(datastore.IDField))
}

func TestSave_PlainObject(t *testing.T) {
	cc, mem := newCommands()
	o := storage.NewObject()
	o.Set("title", "Plain")

	saved := save(t, cc, o, map[string]any{"collection": "pages"})
	id := saved.(*storage.Object).GetString(datastore.IDField)

	doc, err := mem.Collection("pages").FindOne(context.Background(), datastore.Query{datastore.IDField: id})
	require.NoError(t, err)
	require.NotNil(t, doc)

	restored, err := Decode(doc)
	require.NoError(t, err)
	assert.IsType(t, &storage.Object{}, restored)
	assert.Equal(t, "Plain", restored.(*storage.Object).GetString("title"))
}

func TestSave_UpdatesExistingDocument(t *testing.T) {
	cc, mem := newCommands()
	a := save(t, cc, newArticle("First"), nil).(*article)
	a.Set("title", "Second")
	save(t, cc, a, nil)

	docs, err := mem.Collection(DefaultCollection).Find(context.Background(), datastore.Query{}, datastore.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Second", docs[0]["title"])
}

func TestSave_RejectsNonStorable(t *testing.T) {
	cc, _ := newCommands()
	_, err := run(t, chain.Func(saveDef(), cc.save), map[string]any{"content": "just text"}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeValidationFailed))
}

func TestSave_Events(t *testing.T) {
	cc, _ := newCommands()
	bus := chain.NewEventBus()

	var fired []string
	bus.On("command.preSave", func(e *chain.Event) error {
		fired = append(fired, e.Name)
		replacement := newArticle("Rewritten")
		e.Data["content"] = replacement
		return nil
	})
	bus.On("command.onSave", func(e *chain.Event) error {
		fired = append(fired, e.Name)
		assert.NotEmpty(t, e.Data["id"])
		return nil
	})

	out, err := run(t, chain.Func(saveDef(), cc.save), map[string]any{"content": newArticle("Original")}, bus)
	require.NoError(t, err)
	assert.Equal(t, []string{"preSave", "onSave"}, fired)
	assert.Equal(t, "Rewritten", out.(*article).GetString("title"))
}

func TestLoad_NotFound(t *testing.T) {
	cc, _ := newCommands()
	bus := chain.NewEventBus()
	notFound := false
	bus.On("command.onNotFound", func(e *chain.Event) error {
		notFound = true
		assert.Equal(t, "0123456789abcdef01234567", e.Data["id"])
		return nil
	})

	out, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": "0123456789abcdef01234567"}, bus)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, notFound)
}

func TestLoad_EventsMayRewrite(t *testing.T) {
	cc, _ := newCommands()
	target := save(t, cc, newArticle("Target"), nil).(*article)
	targetID := target.GetString(datastore.IDField)

	bus := chain.NewEventBus()
	bus.On("command.preLoad", func(e *chain.Event) error {
		e.Data["id"] = targetID
		return nil
	})
	bus.On("command.onLoad", func(e *chain.Event) error {
		a := e.Data["content"].(*article)
		a.Set("title", a.GetString("title")+" (seen)")
		return nil
	})

	out, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": "somethingelse"}, bus)
	require.NoError(t, err)
	assert.Equal(t, "Target (seen)", out.(*article).GetString("title"))
}

func TestLoad_HandlerErrorInterrupts(t *testing.T) {
	cc, _ := newCommands()
	bus := chain.NewEventBus()
	bus.On("command.preLoad", func(*chain.Event) error { return errors.New("denied") })

	_, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": "x"}, bus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestLoad_MissingID(t *testing.T) {
	cc, _ := newCommands()
	_, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeMissingParameter))
}

func TestDelete(t *testing.T) {
	cc, _ := newCommands()
	id := save(t, cc, newArticle("Doomed"), nil).(*article).GetString(datastore.IDField)

	bus := chain.NewEventBus()
	deleted := false
	bus.On("command.onDelete", func(*chain.Event) error {
		deleted = true
		return nil
	})

	out, err := run(t, chain.Func(deleteDef(), cc.delete), map[string]any{"id": id}, bus)
	require.NoError(t, err)
	assert.Equal(t, true, out)
	assert.True(t, deleted)

	out, err = run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": id}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDelete_PreDeleteRewritesQuery(t *testing.T) {
	cc, mem := newCommands()
	save(t, cc, newArticle("Keep"), nil)
	save(t, cc, newArticle("Drop"), nil)

	bus := chain.NewEventBus()
	bus.On("command.preDelete", func(e *chain.Event) error {
		e.Data["query"] = datastore.Query{"title": "Drop"}
		return nil
	})
	_, err := run(t, chain.Func(deleteDef(), cc.delete), map[string]any{"id": "ignored"}, bus)
	require.NoError(t, err)

	docs, err := mem.Collection(DefaultCollection).Find(context.Background(), datastore.Query{}, datastore.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Keep", docs[0]["title"])
}

type brokenCollection struct {
	datastore.Collection
}

func (brokenCollection) Save(context.Context, datastore.Document) (datastore.Document, error) {
	return nil, errors.New("disk full")
}

func (brokenCollection) Remove(context.Context, datastore.Query) error {
	return errors.New("disk full")
}

type brokenStore struct {
	*datastore.Memory
}

func (s brokenStore) Collection(name string) datastore.Collection {
	return brokenCollection{s.Memory.Collection(name)}
}

func TestStorageFailures(t *testing.T) {
	sources := datastore.NewSources()
	sources.Add("broken", brokenStore{datastore.NewMemory()}, true)
	cc := &Commands{Sources: sources}

	bus := chain.NewEventBus()
	var fired []string
	bus.On("command.*", func(e *chain.Event) error {
		if e.Name == chain.EventBeforeCommand {
			return nil
		}
		fired = append(fired, e.Name)
		return nil
	})

	_, err := run(t, chain.Func(saveDef(), cc.save), map[string]any{"content": newArticle("x")}, bus)
	assert.True(t, verrors.HasCode(err, verrors.CodeStorageOperation))

	_, err = run(t, chain.Func(deleteDef(), cc.delete), map[string]any{"id": "x"}, bus)
	assert.True(t, verrors.HasCode(err, verrors.CodeStorageOperation))

	assert.Equal(t, []string{"preSave", "onSaveError", "preDelete", "onDeleteError"}, fired)
}

func TestUnknownDatasource(t *testing.T) {
	cc, _ := newCommands()
	_, err := run(t, chain.Func(loadDef(), cc.load), map[string]any{"id": "x", "datasource": "nope"}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))
}

func TestFind(t *testing.T) {
	cc, _ := newCommands()
	for i, title := range []string{"a", "b", "c", "d"} {
		a := newArticle(title)
		a.Set("rank", i)
		a.Set("section", map[bool]string{true: "news", false: "blog"}[i%2 == 0])
		save(t, cc, a, nil)
	}

	find := func(params map[string]any) []storage.Storable {
		t.Helper()
		params["collection"] = DefaultCollection
		out, err := run(t, chain.Func(findDef(), cc.find), params, nil)
		require.NoError(t, err)
		return out.([]storage.Storable)
	}
	titles := func(items []storage.Storable) []string {
		var out []string
		for _, s := range items {
			out = append(out, s.(*article).GetString("title"))
		}
		return out
	}

	assert.Equal(t, []string{"c", "a"}, titles(find(map[string]any{
		"filter": map[string]any{"section": "news"},
		"sort":   []string{"-rank"},
	})))
	assert.Equal(t, []string{"b"}, titles(find(map[string]any{
		"filter": map[string]any{},
		"sort":   map[string]any{"rank": 1},
		"skip":   1,
		"limit":  1,
	})))
}

func TestFind_RequiresCollectionAndFilter(t *testing.T) {
	cc, _ := newCommands()
	_, err := run(t, chain.Func(findDef(), cc.find), map[string]any{"filter": map[string]any{}}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeMissingParameter))

	_, err = run(t, chain.Func(findDef(), cc.find), map[string]any{"collection": "c", "filter": "x"}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeValidationFailed))
}

func TestCommands_ThroughRequestTable(t *testing.T) {
	cc, _ := newCommands()
	id := save(t, cc, newArticle("Routed"), nil).(*article).GetString(datastore.IDField)

	reg := chain.NewRegistry()
	require.NoError(t, cc.Register(reg))

	tbl, err := chain.ParseTable([]byte(`
requests:
  view:
    - name: article
      invoke: content.Load
      params:
        id: {from: "get:id"}
`))
	require.NoError(t, err)

	input := chain.MapInput{}
	input.Set(chain.SourceGet, "id", id)
	c, err := chain.NewExecutor(reg, tbl).Run(context.Background(), "view", input)
	require.NoError(t, err)
	assert.Equal(t, "Routed", c.Get("article").(*article).GetString("title"))
}
