package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/flindoc/internal/dataset"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/filter"
	"github.com/skshohagmiah/flindoc/internal/loader"
)

func createTestApp(t *testing.T, args ...string) *app {
	t.Helper()
	t.Chdir(t.TempDir())
	fs := pflag.NewFlagSet("flindoc", pflag.ContinueOnError)
	addGlobalFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--log-level", "error"}, args...)))
	a, err := newApp("", fs)
	require.NoError(t, err)
	return a
}

func testCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(out)
	return cmd
}

func TestSampleCollection(t *testing.T) {
	a := createTestApp(t, "--index", "title", "--index", "author, published_year")
	defer a.Close(context.Background())

	c, err := a.openCollection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dataset.Collection, c.Name())
	assert.Equal(t, 24, c.Len())

	var names []string
	for _, h := range c.Indexes() {
		names = append(names, h.Name)
	}
	assert.ElementsMatch(t, []string{"title_1", "author_1_published_year_1"}, names)
}

func TestImportAndReopen(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store")

	env = createTestApp(t, "--store", store, "--index", "title")
	var out bytes.Buffer
	require.NoError(t, importCmd.RunE(testCommand(&out), nil))
	assert.Equal(t, "imported 24 documents into books\n", out.String())
	require.NoError(t, env.Close(context.Background()))

	env = createTestApp(t, "--store", store)
	defer func() {
		env.Close(context.Background())
		env = nil
	}()
	c, err := env.openCollection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, c.Len())

	exp, err := c.Explain(context.Background(), filter.Eq("title", "Dune"))
	require.NoError(t, err)
	assert.Equal(t, db.IndexSeek, exp.AccessPath)
	assert.Equal(t, 1, exp.DocumentsReturned)
}

func TestImportNeedsStore(t *testing.T) {
	env = createTestApp(t)
	defer func() {
		env.Close(context.Background())
		env = nil
	}()
	var out bytes.Buffer
	assert.Error(t, importCmd.RunE(testCommand(&out), nil))
}

func TestDataFile(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "books.ndjson")
	schema := filepath.Join(dir, "books.schema.json")
	require.NoError(t, os.WriteFile(schema, dataset.BooksSchema(), 0o644))
	require.NoError(t, os.WriteFile(data, []byte(`{"title": "Dune", "author": "Frank Herbert", "genre": "Science Fiction", "published_year": 1965, "price": 16.99, "in_stock": true}
{"title": "Emma", "author": "Jane Austen", "genre": "Romance", "published_year": 1815, "price": 8.99, "in_stock": false}
`), 0o644))

	a := createTestApp(t, "--data", data, "--schema", schema, "--collection", "library")
	c, err := a.openCollection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "library", c.Name())
	assert.Equal(t, 2, c.Len())
	require.NoError(t, a.Close(context.Background()))

	require.NoError(t, os.WriteFile(data, []byte(`{"title": "Dune", "price": -1}`), 0o644))
	a = createTestApp(t, "--data", data, "--schema", schema)
	defer a.Close(context.Background())
	_, err = a.openCollection(context.Background())
	assert.ErrorIs(t, err, loader.ErrInvalidRecord)
}

func TestMetricsServer(t *testing.T) {
	a := createTestApp(t, "--metrics-addr", "127.0.0.1:0")
	require.NotNil(t, a.metrics)
	_, err := a.openCollection(context.Background())
	require.NoError(t, err)
	assert.NoError(t, a.Close(context.Background()))
}

func parseQuery(t *testing.T, args ...string) (filter.Node, db.FindOptions, error) {
	t.Helper()
	fs := pflag.NewFlagSet("find", pflag.ContinueOnError)
	addQueryFlags(fs, true, true)
	require.NoError(t, fs.Parse(args))
	return queryFlags(fs)
}

func TestQueryFlags(t *testing.T) {
	f, opts, err := parseQuery(t,
		"--filter", `{"genre": "Fantasy"}`,
		"--options", `{"sort": {"price": -1}, "limit": 2, "skip": 1}`,
		"--limit", "3",
		"--projection", `{"title": 1}`,
		"--hint", "$natural",
	)
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, []db.SortField{{Path: "price", Desc: true}}, opts.Sort)
	assert.Equal(t, 1, opts.Skip)
	assert.Equal(t, 3, opts.Limit)
	assert.Equal(t, db.NaturalHint, opts.Hint)
	assert.NotNil(t, opts.Projection)

	_, opts, err = parseQuery(t, "--sort", "published_year,price:desc")
	require.NoError(t, err)
	assert.Equal(t, []db.SortField{{Path: "published_year"}, {Path: "price", Desc: true}}, opts.Sort)

	for _, args := range [][]string{
		{"--filter", `{"a": `},
		{"--filter", `{"price": {"$regex": "x"}}`},
		{"--options", `{"limit": "ten"}`},
		{"--options", `[1]`},
		{"--sort", "price:up"},
		{"--limit", "-1"},
		{"--projection", `{"title": 1, "price": 0}`},
	} {
		_, _, err := parseQuery(t, args...)
		assert.ErrorIs(t, err, db.ErrInvalidQuery, strings.Join(args, " "))
	}
}

func TestPipelineSource(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().String("pipeline", "", "")
		cmd.Flags().String("file", "", "")
		require.NoError(t, cmd.Flags().Parse(args))
		return cmd
	}
	const p = `[{"$limit": 1}]`

	src, err := pipelineSource(newCmd(), []string{p})
	require.NoError(t, err)
	assert.Equal(t, p, string(src))

	src, err = pipelineSource(newCmd("--pipeline", p), nil)
	require.NoError(t, err)
	assert.Equal(t, p, string(src))

	file := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(file, []byte(p), 0o644))
	src, err = pipelineSource(newCmd("--file", file), nil)
	require.NoError(t, err)
	assert.Equal(t, p, string(src))

	cmd := newCmd("--file", "-")
	cmd.SetIn(strings.NewReader(p))
	src, err = pipelineSource(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, p, string(src))

	_, err = pipelineSource(newCmd(), nil)
	assert.Error(t, err)
	_, err = pipelineSource(newCmd("--pipeline", p), []string{p})
	assert.Error(t, err)
}
