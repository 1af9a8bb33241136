package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villain-cms/villain/internal/blog"
	"github.com/villain-cms/villain/internal/bundles"
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/pkg/core/config"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/health"
	"github.com/villain-cms/villain/pkg/core/logging"
)

const commands = `
requests:
  "@install":
    - {name: datastore, invoke: installer.CheckDatastore}
    - {name: filters, invoke: installer.SeedFilters}
  greet:
    - name: output
      invoke: filters.Run
      params:
        chain: plain
        value: {from: "arg:0"}
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	path := filepath.Join(dir, "villain.toml")
	writeFile(t, path, "[datastore]\ndriver = \"memory\"\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, Options{Logger: logging.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_RunsRequests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "commands.yaml"), commands)
	a := newApp(t, testConfig(t, dir))

	_, err := a.Executor.Run(context.Background(), "@install", nil)
	require.NoError(t, err)

	c, err := a.Executor.Run(context.Background(), "greet", chain.ArgsInput{"<b>Hi</b> there"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", c.Get("output"))

	for _, target := range []string{"content.Save", "user.Authenticate", "blog.CreateEntry", "cli.ParseOptions",
		"configuration.AddToml", "util.Echo", "installer.RecordBundles", "filters.Initialize"} {
		_, ok := a.Registry.Lookup(target)
		assert.True(t, ok, target)
	}

	report := a.Health.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, report.Status)
}

func TestNew_WithoutRequestTable(t *testing.T) {
	a := newApp(t, testConfig(t, t.TempDir()))
	assert.Nil(t, a.Executor.Table())

	report := a.Health.Check(context.Background())
	assert.Equal(t, health.StatusDegraded, report.Status)
}

func TestNew_RejectsUnknownTargets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "commands.yaml"), `
requests:
  broken:
    - {name: x, invoke: nowhere.Command}
`)
	_, err := New(context.Background(), testConfig(t, dir), Options{Logger: logging.NewNop()})
	require.Error(t, err)
	assert.True(t, verrors.HasCode(err, verrors.CodeConfiguration))
}

func TestReloadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	writeFile(t, path, commands)
	a := newApp(t, testConfig(t, dir))
	assert.False(t, a.Executor.Table().Has("echo"))

	writeFile(t, path, `
requests:
  echo:
    - {name: output, invoke: util.Echo, params: {value: hi}}
`)
	require.NoError(t, a.ReloadTable())
	assert.True(t, a.Executor.Table().Has("echo"))

	writeFile(t, path, `requests: {bad: [{name: x, invoke: nowhere.Command}]}`)
	require.Error(t, a.ReloadTable())
	assert.True(t, a.Executor.Table().Has("echo"), "a rejected table must not replace the current one")
}

func TestLoadBundles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundles", "Tagging", bundles.ManifestFile), `
name: Tagging
version: 0.1.0
depends:
  BasicBlog: {min: 1.0.0}
`)
	cfg := testConfig(t, dir)

	bm, err := LoadBundles(cfg, nil)
	require.NoError(t, err)
	assert.True(t, bm.Has(bundles.CoreBundle))
	assert.True(t, bm.Has(blog.BundleName))
	assert.True(t, bm.Has("Tagging"))
	require.NoError(t, bm.Initialize(false))

	writeFile(t, filepath.Join(dir, "bundles", "Gallery", bundles.ManifestFile), `
name: Gallery
version: 0.1.0
depends:
  Images: {}
`)
	_, err = New(context.Background(), cfg, Options{Logger: logging.NewNop(), Datastore: datastore.NewMemory()})
	require.Error(t, err)
	assert.True(t, verrors.HasCode(err, verrors.CodeMissingDependency))
}

func TestSetupTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf)
	require.NoError(t, err)

	_, _, err = chain.RunCommand(context.Background(), chain.Func(chain.Describe("noop"),
		func(*chain.Invocation) (any, error) { return nil, nil }), nil, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "command command")
}

func TestSampleRequestTable(t *testing.T) {
	a := newApp(t, testConfig(t, t.TempDir()))
	tbl, err := chain.LoadTable(filepath.Join("..", "..", "configs", "commands.yaml"))
	require.NoError(t, err)
	require.NoError(t, tbl.Check(a.Registry))
	a.Executor.SetTable(tbl)

	c, err := a.Executor.Run(context.Background(), "@install", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"escaped", "plain", "safeHTML"}, c.Get("filters"))

	c, err = a.Executor.Run(context.Background(), "newBlog",
		chain.ArgsInput{"Villain <i>News</i>", "news", "<p>Hello</p><script>alert(1)</script>"})
	require.NoError(t, err)
	saved, ok := c.Get(tbl.OutputKey("newBlog", "")).(*blog.Blog)
	require.True(t, ok)
	assert.Equal(t, "Villain News", saved.Title())
	assert.Equal(t, "<p>Hello</p>", saved.GetString("description"))

	c, err = a.Executor.Run(context.Background(), "render", chain.ArgsInput{"escaped", "<b>"})
	require.NoError(t, err)
	assert.Equal(t, "&#60;b&#62;", c.Get("output"))
}
