package shell

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/document"
)

func createTestShell(t *testing.T) *Shell {
	t.Helper()
	c := db.Open("books")
	_, err := c.InsertMany(context.Background(), []db.Document{
		document.MustFromMap(map[string]any{"_id": "1", "title": "The Hobbit", "genre": "Fantasy", "price": 14.99}),
		document.MustFromMap(map[string]any{"_id": "2", "title": "Emma", "genre": "Romance", "price": 8.99}),
		document.MustFromMap(map[string]any{"_id": "3", "title": "Dune", "genre": "Science Fiction", "price": 16.99}),
	})
	require.NoError(t, err)
	return New(c, nil)
}

func run(t *testing.T, s *Shell, line string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Execute(context.Background(), line, &out), line)
	return out.String()
}

func TestFind(t *testing.T) {
	s := createTestShell(t)

	out := run(t, s, `find {"genre": "Fantasy"}`)
	assert.Equal(t, `{"_id":"1","genre":"Fantasy","price":14.99,"title":"The Hobbit"}`+"\n", out)

	out = run(t, s, `find {} {"sort": {"price": -1}, "limit": 2, "projection": {"title": 1, "_id": 0}}`)
	assert.Equal(t, "{\"title\":\"Dune\"}\n{\"title\":\"The Hobbit\"}\n", out)

	out = run(t, s, `find`)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	assert.Equal(t, "2\n", run(t, s, `count {"price": {"$gt": 10}}`))
}

func TestMutations(t *testing.T) {
	s := createTestShell(t)

	assert.Equal(t, "matched 1, modified 1\n", run(t, s, `update {"title": "The Hobbit"} {"$set": {"price": 19.99}}`))
	assert.Contains(t, run(t, s, `find {"title": "The Hobbit"}`), `"price":19.99`)

	assert.Equal(t, "matched 3, modified 3\n", run(t, s, `updateMany {} {"$inc": {"price": 1}}`))
	assert.Equal(t, "deleted 1\n", run(t, s, `delete {"title": "Emma"}`))
	assert.Equal(t, "x\n", run(t, s, `insert {"_id": "x", "title": "Twilight"}`))
	assert.Equal(t, "deleted 3\n", run(t, s, `deleteMany {}`))
}

func TestIndexesAndExplain(t *testing.T) {
	s := createTestShell(t)

	assert.Equal(t, "title_1\n", run(t, s, `index title`))
	assert.Equal(t, "genre_1_price_1\n", run(t, s, `index genre, price`))
	assert.Equal(t, "genre_1_price_1 (genre, price)\ntitle_1 (title)\n", run(t, s, `indexes`))

	out := run(t, s, `explain {"title": "Dune"}`)
	assert.Contains(t, out, "accessPath:        IndexSeek")
	assert.Contains(t, out, "index:             title_1 (title)")
	assert.Contains(t, out, "documentsExamined: 1")

	out = run(t, s, `explain {"title": "Dune"} {"hint": "$natural"}`)
	assert.Contains(t, out, "accessPath:        FullScan")
	assert.Contains(t, out, "documentsExamined: 3")

	run(t, s, `dropIndex title_1`)
	assert.Equal(t, "genre_1_price_1 (genre, price)\n", run(t, s, `indexes`))
}

func TestAggregate(t *testing.T) {
	s := createTestShell(t)
	out := run(t, s, `aggregate [{"$group": {"_id": null, "total": {"$sum": "$price"}}}, {"$project": {"_id": 0, "total": {"$floor": "$total"}}}]`)
	assert.Equal(t, "{\"total\":40}\n", out)
}

func TestErrors(t *testing.T) {
	s := createTestShell(t)
	ctx := context.Background()
	var out bytes.Buffer

	tests := []struct {
		line string
		want error
	}{
		{`find {"price": {"$regex": "x"}}`, db.ErrInvalidQuery},
		{`find [1]`, db.ErrInvalidQuery},
		{`find {} {} {}`, db.ErrInvalidQuery},
		{`find {} {"limit": -1}`, db.ErrInvalidQuery},
		{`find {"a": `, db.ErrInvalidQuery},
		{`update {"title": "Emma"}`, db.ErrInvalidQuery},
		{`insert`, db.ErrInvalidDocument},
		{`insert {"_id": "1"}`, db.ErrDuplicateID},
		{`aggregate [{"$bucket": {}}]`, aggregate.ErrInvalidExpression},
		{`dropIndex nope`, db.ErrIndexNotFound},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, s.Execute(ctx, tt.line, &out), tt.want, tt.line)
	}

	assert.Error(t, s.Execute(ctx, "frobnicate", &out))
	assert.ErrorIs(t, s.Execute(ctx, "exit", &out), ErrExit)
	assert.Contains(t, run(t, s, "help"), "aggregate <pipeline>")
}
