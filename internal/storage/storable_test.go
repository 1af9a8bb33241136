package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	Decorator
}

func newAuthor() *author { return &author{Decorator: NewDecorator(nil)} }

func (a *author) StorableType() string { return "test.author" }

type point struct {
	X      int `json:"x"`
	Y      int
	hidden int
	Skip   string `json:"-"`
}

func init() {
	RegisterType("test.author", func() Storable { return newAuthor() })
}

func TestObject_PropertyAccess(t *testing.T) {
	o := NewObject()
	o.Set("title", "Hello")
	o.Set("count", 3)

	assert.Equal(t, "Hello", o.Get("title"))
	assert.True(t, o.Has("title"))
	assert.False(t, o.Has("missing"))
	assert.Nil(t, o.Get("missing"))
	assert.Equal(t, []string{"title", "count"}, o.Keys())

	o.Set("title", "Replaced")
	assert.Equal(t, []string{"title", "count"}, o.Keys(), "overwrite keeps position")

	o.Remove("title")
	assert.False(t, o.Has("title"))
	assert.Equal(t, 1, o.Len())

	o.Set("nothing", nil)
	_, present := o.Lookup("nothing")
	assert.True(t, present)
	assert.False(t, o.Has("nothing"), "nil values are not considered set")
}

func TestObject_TypedGetters(t *testing.T) {
	o := NewObject()
	o.Set("n", "42")
	o.Set("f", 2.0)
	o.Set("b", "true")

	n, ok := o.GetInt("n")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	f, ok := o.GetInt("f")
	require.True(t, ok)
	assert.Equal(t, int64(2), f)

	assert.True(t, o.GetBool("b"))
	assert.Equal(t, "2", o.GetString("f"))
	assert.Equal(t, "", o.GetString("missing"))
}

func TestObject_AccessorSugar(t *testing.T) {
	o := NewObject()

	_, err := o.Call("setTitle", "From sugar")
	require.NoError(t, err)
	assert.Equal(t, "From sugar", o.Get("title"), "sugar writes the same storage")

	o.Set("subTitle", "direct")
	v, err := o.Call("getSubTitle")
	require.NoError(t, err)
	assert.Equal(t, "direct", v)

	_, err = o.Call("setTitle")
	assert.Error(t, err, "set without a value")

	_, err = o.Call("frobTitle")
	assert.Error(t, err)

	v, err = o.Call("get")
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestRoundTrip_FlatData(t *testing.T) {
	data := map[string]any{
		"title":   "Post",
		"count":   7,
		"ratio":   0.5,
		"enabled": true,
		"tags":    []any{"a", "b"},
		"meta":    map[string]any{"k": "v"},
		"nothing": nil,
	}

	o, err := NewFromMap(data)
	require.NoError(t, err)

	if diff := cmp.Diff(data, o.ToMap()); diff != "" {
		t.Errorf("ToMap(FromMap(d)) mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_NestedStorableKeepsConcreteType(t *testing.T) {
	a := newAuthor()
	a.Set("name", "Ada")

	inner := NewObject()
	inner.Set("k", "v")

	o := NewObject()
	o.Set("title", "Post")
	o.Set("author", a)
	o.Set("extra", inner)

	projected := o.ToMap()
	authorMap, ok := projected["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test.author", authorMap[AutocastKey])
	assert.Equal(t, "Ada", authorMap["name"])

	restored, err := NewFromMap(projected)
	require.NoError(t, err)

	got, ok := restored.Get("author").(*author)
	require.True(t, ok, "nested value should be *author, got %T", restored.Get("author"))
	assert.Equal(t, "Ada", got.Get("name"))
	assert.False(t, got.Has(AutocastKey), "discriminator is stripped on restore")

	extra, ok := restored.Get("extra").(*Object)
	require.True(t, ok)
	assert.Equal(t, "v", extra.Get("k"))

	if diff := cmp.Diff(projected, restored.ToMap()); diff != "" {
		t.Errorf("second projection differs (-want +got):\n%s", diff)
	}
}

func TestToMap_ShallowStructProjection(t *testing.T) {
	o := NewObject()
	o.Set("pos", &point{X: 1, Y: 2, hidden: 3, Skip: "no"})
	o.Set("when", time.Unix(0, 0).UTC())

	m := o.ToMap()
	assert.Equal(t, map[string]any{"x": 1, "Y": 2}, m["pos"])
	assert.IsType(t, time.Time{}, m["when"], "time values are scalars")
}

func TestFromMap_UnknownType(t *testing.T) {
	_, err := NewFromMap(map[string]any{
		"bad": map[string]any{AutocastKey: "no.such.type"},
	})
	assert.Error(t, err)
}

func TestFromMap_MapWithoutDiscriminatorStaysMap(t *testing.T) {
	o, err := NewFromMap(map[string]any{"m": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, o.Get("m"))
}

func TestDecorator_Forwards(t *testing.T) {
	inner := NewObject()
	d := NewDecorator(inner)

	d.Set("a", 1)
	assert.Equal(t, 1, inner.Get("a"))
	assert.True(t, d.Has("a"))
	assert.Same(t, inner, d.Unwrap())

	require.NoError(t, d.FromMap(map[string]any{"b": 2}))
	assert.Equal(t, map[string]any{"b": 2}, d.ToMap())
	assert.False(t, inner.Has("a"))

	var zero Decorator
	zero.Set("x", "y")
	assert.Equal(t, "y", zero.GetString("x"))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "test.author", TypeName(newAuthor()))
	assert.Equal(t, "storage.Object", TypeName(NewObject()))
}

func TestMarshalJSON_EncodesProjection(t *testing.T) {
	o := NewObject()
	o.Set("title", "Hello")
	o.Set("_id", "abc")
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "Hello", "_id": "abc"}`, string(data))

	a := newAuthor()
	a.Set("name", "Ada")
	o.Set("author", a)
	data, err = json.Marshal(map[string]any{"entry": o, "by": a})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"entry": {"title": "Hello", "_id": "abc", "author": {"name": "Ada", "__storable_autocast": "test.author"}},
		"by": {"name": "Ada"}
	}`, string(data))
}
