package configuration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villain-cms/villain/internal/chain"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

const sampleToml = `
title = "Villain"

[database]
name = "villain"
port = 27017
`

func runLoader(t *testing.T, target string, params map[string]any, bus *chain.EventBus) (*chain.Context, error) {
	t.Helper()
	reg := chain.NewRegistry()
	require.NoError(t, Register(reg))
	f, ok := reg.Lookup(target)
	require.True(t, ok)

	var opts []chain.Option
	if bus != nil {
		opts = append(opts, chain.WithEventBus(bus))
	}
	_, c, err := chain.RunCommand(context.Background(), f(), params, nil, opts...)
	return c, err
}

func TestAddToml(t *testing.T) {
	c, err := runLoader(t, TargetAddToml, map[string]any{"data": sampleToml}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Villain", c.Get("title"))
	db, ok := c.Get("database").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(27017), db["port"])
}

func TestAddToml_UseSection(t *testing.T) {
	c, err := runLoader(t, TargetAddToml, map[string]any{"data": sampleToml, "useSection": "database"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "villain", c.Get("name"))
	assert.False(t, c.Has("title"))
}

func TestAddToml_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleToml), 0o644))

	c, err := runLoader(t, TargetAddToml, map[string]any{"filename": path}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Villain", c.Get("title"))
}

func TestAddJson(t *testing.T) {
	c, err := runLoader(t, TargetAddJson, map[string]any{"data": `{"a": 1, "b": {"c": true}}`}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), c.Get("a"))
	v, ok := c.Path("b.c")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestAddYaml(t *testing.T) {
	c, err := runLoader(t, TargetAddYaml, map[string]any{"data": "site:\n  name: Villain\ntags: [a, b]\n"}, nil)
	require.NoError(t, err)
	v, ok := c.Path("site.name")
	assert.True(t, ok)
	assert.Equal(t, "Villain", v)
	assert.Equal(t, []any{"a", "b"}, c.Get("tags"))
}

func TestOnLoadMayModify(t *testing.T) {
	bus := chain.NewEventBus()
	bus.On("command.onLoad", func(e *chain.Event) error {
		data := e.Data["data"].(map[string]any)
		data["injected"] = "yes"
		delete(data, "a")
		return nil
	})
	c, err := runLoader(t, TargetAddJson, map[string]any{"data": `{"a": 1}`}, bus)
	require.NoError(t, err)
	assert.Equal(t, "yes", c.Get("injected"))
	assert.False(t, c.Has("a"))
}

func TestLoaderErrors(t *testing.T) {
	_, err := runLoader(t, TargetAddJson, map[string]any{"data": `{broken`}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeInvalidInput))

	_, err = runLoader(t, TargetAddYaml, map[string]any{}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeMissingParameter))

	_, err = runLoader(t, TargetAddToml, map[string]any{"filename": filepath.Join(t.TempDir(), "nope.toml")}, nil)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))
}
