package datastore

import (
	"context"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villain-cms/villain/pkg/core/config"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

func backends(t *testing.T) map[string]Datastore {
	t.Helper()
	out := map[string]Datastore{"memory": NewMemory()}

	sqlite, err := NewSQLite(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	out["sqlite"] = sqlite

	if url := os.Getenv("VILLAIN_TEST_POSTGRES_URL"); url != "" {
		pg, err := NewPostgres(context.Background(), url)
		require.NoError(t, err)
		_, err = pg.pool.Exec(context.Background(), `DELETE FROM villain_documents`)
		require.NoError(t, err)
		out["postgres"] = pg
	}

	t.Cleanup(func() {
		for _, ds := range out {
			ds.Close()
		}
	})
	return out
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{24}$`), id)
	assert.NotEqual(t, id, NewID())
}

func TestCollection_Contract(t *testing.T) {
	for name, ds := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := ds.Collection("content")
			assert.Equal(t, "content", c.Name())
			require.NoError(t, ds.Ping(ctx))

			saved, err := c.Save(ctx, Document{"title": "First", "rank": 2, "meta": map[string]any{"lang": "en"}})
			require.NoError(t, err)
			id := saved.ID()
			require.NotEmpty(t, id)

			_, err = c.Save(ctx, Document{"title": "Second", "rank": 1, "meta": map[string]any{"lang": "de"}})
			require.NoError(t, err)
			_, err = c.Save(ctx, Document{"title": "Third", "rank": 3})
			require.NoError(t, err)

			got, err := c.FindOne(ctx, Query{IDField: id})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "First", got["title"])
			assert.Equal(t, float64(2), got["rank"], "numbers come back normalized")

			byPath, err := c.FindOne(ctx, Query{"meta.lang": "de"})
			require.NoError(t, err)
			require.NotNil(t, byPath)
			assert.Equal(t, "Second", byPath["title"])

			none, err := c.FindOne(ctx, Query{"title": "Missing"})
			require.NoError(t, err)
			assert.Nil(t, none)

			all, err := c.Find(ctx, nil, FindOptions{Sort: ParseSort("-rank")})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []any{"Third", "First", "Second"}, []any{all[0]["title"], all[1]["title"], all[2]["title"]})

			page, err := c.Find(ctx, nil, FindOptions{Sort: ParseSort("rank"), Skip: 1, Limit: 1, Fields: []string{"title"}})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, Document{IDField: id, "title": "First"}, page[0])

			// save with an existing id replaces the document
			saved["title"] = "First (edited)"
			_, err = c.Save(ctx, saved)
			require.NoError(t, err)
			all, err = c.Find(ctx, Query{}, FindOptions{})
			require.NoError(t, err)
			assert.Len(t, all, 3)
			got, err = c.FindOne(ctx, Query{IDField: id})
			require.NoError(t, err)
			assert.Equal(t, "First (edited)", got["title"])

			require.NoError(t, c.Remove(ctx, Query{IDField: id}))
			got, err = c.FindOne(ctx, Query{IDField: id})
			require.NoError(t, err)
			assert.Nil(t, got)

			// collections are isolated
			other, err := ds.Collection("users").Find(ctx, nil, FindOptions{})
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestCollection_ExactQuerySemantics(t *testing.T) {
	for name, ds := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := ds.Collection("tagged")

			_, err := c.Save(ctx, Document{"title": "One", "tags": []any{"a"}})
			require.NoError(t, err)
			_, err = c.Save(ctx, Document{"title": "Both", "tags": []any{"a", "b"}, "draft": true})
			require.NoError(t, err)

			exact, err := c.Find(ctx, Query{"tags": []any{"a"}}, FindOptions{})
			require.NoError(t, err)
			require.Len(t, exact, 1)
			assert.Equal(t, "One", exact[0]["title"])

			undrafted, err := c.Find(ctx, Query{"draft": nil}, FindOptions{})
			require.NoError(t, err)
			require.Len(t, undrafted, 1, "nil matches a missing key")
			assert.Equal(t, "One", undrafted[0]["title"])

			require.NoError(t, c.Remove(ctx, Query{"tags": []any{"a"}}))
			left, err := c.Find(ctx, nil, FindOptions{})
			require.NoError(t, err)
			require.Len(t, left, 1, "remove deletes exactly what find returns")
			assert.Equal(t, "Both", left[0]["title"])
		})
	}
}

func TestContainmentFilter(t *testing.T) {
	q := Query{
		"title":     "x",
		"meta.lang": "en",
		"meta.rank": float64(1),
		"draft":     nil,
		"opts":      map[string]any{"a": true},
		"opts.b":    true,
	}
	assert.Equal(t, map[string]any{
		"title": "x",
		"meta":  map[string]any{"lang": "en", "rank": float64(1)},
		"opts":  map[string]any{"a": true},
	}, containment(q))
	assert.Equal(t, map[string]any{"a": true}, q["opts"], "query values are not extended")
}

func TestSave_DoesNotAliasCallerDocument(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("x")
	doc := Document{"a": "b"}
	saved, err := c.Save(ctx, doc)
	require.NoError(t, err)

	saved["a"] = "changed"
	got, err := c.FindOne(ctx, Query{IDField: saved.ID()})
	require.NoError(t, err)
	assert.Equal(t, "b", got["a"])
	assert.NotContains(t, doc, IDField)
}

func TestSave_Nil(t *testing.T) {
	_, err := NewMemory().Collection("x").Save(context.Background(), nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeInvalidInput))
}

func TestMemory_ClosedPing(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.True(t, verrors.HasCode(m.Ping(context.Background()), verrors.CodeStorageOperation))
}

func TestMatches(t *testing.T) {
	doc := Document{"a": "x", "n": float64(1), "nested": map[string]any{"b": true}}
	assert.True(t, Matches(doc, Query{}))
	assert.True(t, Matches(doc, Query{"a": "x", "nested.b": true}))
	assert.False(t, Matches(doc, Query{"a": "y"}))
	assert.False(t, Matches(doc, Query{"nested.c": "z"}))
	assert.True(t, Matches(doc, Query{"absent": nil}))
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, []SortField{{Field: "a"}, {Field: "b", Descending: true}, {Field: "c"}}, ParseSort("a", "-b", "+c", " "))
}

func TestOpen(t *testing.T) {
	ds, err := Open(context.Background(), config.DatastoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, ds)

	_, err = Open(context.Background(), config.DatastoreConfig{Driver: "mongo"}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))
}

func TestSources(t *testing.T) {
	s := NewSources()
	_, err := s.Get("")
	assert.Error(t, err)

	a, b := NewMemory(), NewMemory()
	s.Add("primary", a, false)
	s.Add("archive", b, false)

	got, err := s.Get("")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, "primary", s.Default())

	s.Add("archive", b, true)
	got, err = s.Get("")
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, []string{"archive", "primary"}, s.Names())

	_, err = s.Get("nope")
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))
	assert.NoError(t, s.Close())
}
