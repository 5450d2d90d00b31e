// Package console implements the record stream reporter.
// Writes one line per record to stdout, tab-separated or JSON.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/record"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

const Name = "console"

// ConsoleReporter writes records to an output stream.
type ConsoleReporter struct {
	name          string
	format        string // "tsv" or "json"
	out           *bufio.Writer
	line          []byte
	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format string `mapstructure:"format"` // "tsv" or "json", default "tsv"
}

// NewConsoleReporter creates a console reporter writing to stdout.
func NewConsoleReporter() plugin.Reporter {
	return NewWriterReporter(os.Stdout)
}

// NewWriterReporter creates a console reporter writing to w.
func NewWriterReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		name:   Name,
		format: "tsv",
		out:    bufio.NewWriterSize(w, 64<<10),
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ConsoleReporter) Init(config map[string]any) error {
	var cfg Config
	if err := mapstructure.Decode(config, &cfg); err != nil {
		return fmt.Errorf("decode console config: %w", err)
	}
	switch cfg.Format {
	case "":
	case "tsv", "json":
		r.format = cfg.Format
	default:
		return fmt.Errorf("invalid format %q, must be tsv or json", cfg.Format)
	}
	return nil
}

// Start starts the reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("format", r.format).Debug("console reporter started")
	return nil
}

// Stop flushes and stops the reporter.
func (r *ConsoleReporter) Stop(ctx context.Context) error {
	err := r.out.Flush()
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Debug("console reporter stopped")
	return err
}

// Report writes one record as a single line.
func (r *ConsoleReporter) Report(ctx context.Context, rec *core.OutputRecord) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}

	if r.format == "json" {
		b, err := record.MarshalJSON(rec)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		r.line = append(r.line[:0], b...)
	} else {
		r.line = record.Append(r.line[:0], rec)
	}
	r.line = append(r.line, '\n')

	if _, err := r.out.Write(r.line); err != nil {
		return err
	}
	r.reportedCount.Add(1)
	return nil
}

// Flush writes buffered lines to the underlying stream.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return r.out.Flush()
}
