package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/skshohagmiah/flindoc/internal/config"
	"github.com/skshohagmiah/flindoc/internal/dataset"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/loader"
	"github.com/skshohagmiah/flindoc/internal/logging"
	"github.com/skshohagmiah/flindoc/internal/metrics"
	"github.com/skshohagmiah/flindoc/internal/storage"
)

// app holds what every command shares: configuration, logger, metrics and
// the optional store.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	server  *http.Server
	store   *storage.DocStorage

	closeLog func()
}

func newApp(file string, flags *pflag.FlagSet) (*app, error) {
	cfg, err := config.Load(file, flags)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		SeqURL: cfg.Log.SeqURL,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}
	if cfg.MetricsAddr != "" {
		a.serveMetrics()
	}
	return a, nil
}

func (a *app) serveMetrics() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// openStore opens the configured store once.
func (a *app) openStore() (*storage.DocStorage, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.cfg.Store == "" {
		return nil, errors.New("no store configured, set --store")
	}
	st, err := storage.NewDocStorage(a.cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

// readDocuments reads the data file, or the sample when none is set.
func (a *app) readDocuments() ([]db.Document, error) {
	if a.cfg.Data == "" {
		a.logger.Debug("loading sample dataset", "collection", dataset.Collection)
		return dataset.Books()
	}
	var opts []loader.Option
	if a.cfg.Schema != "" {
		opts = append(opts, loader.WithSchemaFile(a.cfg.Schema))
	}
	docs, err := loader.LoadFile(a.cfg.Data, opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("loaded data file", "path", a.cfg.Data, "documents", len(docs))
	return docs, nil
}

// openCollection builds the configured collection. A store wins over a
// data file, and the sample is used when neither is set.
func (a *app) openCollection(ctx context.Context) (*db.Collection, error) {
	opts := []db.Option{db.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, db.WithMetrics(a.metrics))
	}
	c := db.Open(a.cfg.Collection, opts...)

	if a.cfg.Store != "" {
		st, err := a.openStore()
		if err != nil {
			return nil, err
		}
		if err := c.LoadFrom(ctx, st); err != nil {
			return nil, err
		}
	} else {
		docs, err := a.readDocuments()
		if err != nil {
			return nil, err
		}
		if _, err := c.InsertMany(ctx, docs); err != nil {
			return nil, err
		}
	}

	for _, def := range a.cfg.Indexes {
		if _, err := c.CreateIndex(config.IndexFields(def)...); err != nil {
			return nil, fmt.Errorf("index %q: %w", def, err)
		}
	}
	return c, nil
}

// Close stops the metrics server and releases the store and log sinks.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	a.closeLog()
	return errors.Join(errs...)
}
