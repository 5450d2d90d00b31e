// Package sqlite implements a reporter that loads records into the SQLite
// record store.
package sqlite

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/store"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

const Name = "sqlite"

// Config represents sqlite reporter configuration.
type Config struct {
	Pcap      string `mapstructure:"pcap"`       // capture the records come from, required
	Path      string `mapstructure:"path"`       // database file, default next to the capture
	Filter    string `mapstructure:"filter"`     // filter recorded for cache validation
	BatchSize int    `mapstructure:"batch_size"` // rows per transaction
}

// SQLiteReporter writes requests and responses to a store database.
type SQLiteReporter struct {
	name   string
	config Config
	writer *store.Writer
}

// NewSQLiteReporter creates a new sqlite reporter.
func NewSQLiteReporter() plugin.Reporter {
	return &SQLiteReporter{name: Name}
}

// Name returns the plugin name.
func (r *SQLiteReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *SQLiteReporter) Init(cfg map[string]any) error {
	c := Config{BatchSize: store.DefaultBatchSize}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &c})
	if err != nil {
		return err
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid sqlite config: %w", err)
	}
	if c.Pcap == "" {
		return fmt.Errorf("pcap is required")
	}
	if c.Path == "" {
		c.Path = store.DefaultPath(c.Pcap)
	}
	c.Filter = config.NewFilter(c.Filter).String()
	r.config = c
	return nil
}

// Path returns the database file the reporter writes.
func (r *SQLiteReporter) Path() string {
	return r.config.Path
}

// Start creates a fresh database.
func (r *SQLiteReporter) Start(ctx context.Context) error {
	w, err := store.Create(ctx, r.config.Path, r.config.BatchSize)
	if err != nil {
		return err
	}
	r.writer = w
	log.GetLogger().WithField("db", r.config.Path).Info("sqlite reporter started")
	return nil
}

// Report stores one record.
func (r *SQLiteReporter) Report(ctx context.Context, rec *core.OutputRecord) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if r.writer == nil {
		return fmt.Errorf("sqlite reporter not started")
	}
	return r.writer.Insert(ctx, rec)
}

// Flush commits the rows received so far.
func (r *SQLiteReporter) Flush(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Commit()
}

// Finish seals the database with its index and cache metadata. A database
// that was never finished is rebuilt on the next run.
func (r *SQLiteReporter) Finish(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	meta, err := store.MetaFor(r.config.Pcap, config.NewFilter(r.config.Filter))
	if err != nil {
		return fmt.Errorf("describe capture: %w", err)
	}
	return r.writer.Finish(ctx, meta)
}

// Stop closes the database.
func (r *SQLiteReporter) Stop(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	log.GetLogger().WithField("db", r.config.Path).
		WithField("requests", r.writer.Requests).
		WithField("responses", r.writer.Responses).
		Info("sqlite reporter stopped")
	err := r.writer.Close()
	r.writer = nil
	return err
}
