package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

func TestCollector(t *testing.T) {
	m := New(nil)

	m.RecordInsert(3, time.Millisecond, nil)
	m.RecordInsert(1, time.Millisecond, errors.New("boom"))
	m.RecordFind(db.IndexSeek, 2, 1, time.Millisecond, nil)
	m.RecordFind(db.FullScan, 10, 4, time.Millisecond, nil)
	m.RecordDelete(2, time.Millisecond, nil)
	m.SetDocuments("books", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("insert", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("insert", "inserted")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("find", "examined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessPathTotal.WithLabelValues("IndexSeek")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessPathTotal.WithLabelValues("FullScan")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("delete", "deleted")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Documents.WithLabelValues("books")))
}

func TestCollectorWiredToCollection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()

	c := db.Open("books", db.WithMetrics(m))
	_, err := c.InsertMany(ctx, []db.Document{
		document.MustFromMap(map[string]any{"title": "Dune"}),
		document.MustFromMap(map[string]any{"title": "Emma"}),
	})
	require.NoError(t, err)
	_, err = c.CreateIndex("title")
	require.NoError(t, err)
	_, err = c.FindAll(ctx, filter.Eq("title", "Dune"), db.FindOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessPathTotal.WithLabelValues("IndexSeek")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues("books")))

	n, err := testutil.GatherAndCount(reg, "flindoc_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.SetDocuments("books", 24)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `flindoc_collection_documents{collection="books"} 24`)
}
