// Package pipeline implements the per-packet extraction stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/extract"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/metrics"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

// Pipeline drives a Source and hands every resulting record to the reporters.
// Packets are processed one at a time on the goroutine that calls Run.
type Pipeline struct {
	source    plugin.Source
	reporters []plugin.Reporter
	metrics   *Metrics
	logger    *logrus.Entry
}

// Config contains pipeline configuration.
type Config struct {
	Source    plugin.Source
	Reporters []plugin.Reporter
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		source:    cfg.Source,
		reporters: cfg.Reporters,
		metrics:   &Metrics{},
		logger:    log.GetLogger().WithField("source", sourceName(cfg.Source)),
	}
}

func sourceName(s plugin.Source) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

// Run starts the reporters and the source, processes packets until the source
// is exhausted, then flushes and stops everything. Finishers are finished only
// after a clean run. The source's error, if any,
// takes precedence over flush and stop errors.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.source == nil {
		return fmt.Errorf("%w: no source configured", core.ErrSourceNotFound)
	}

	started := make([]plugin.Reporter, 0, len(p.reporters))
	for _, r := range p.reporters {
		if err := r.Start(ctx); err != nil {
			p.stopReporters(context.Background(), started)
			return fmt.Errorf("start reporter %s: %w", r.Name(), err)
		}
		started = append(started, r)
	}
	if err := p.source.Start(ctx); err != nil {
		p.stopReporters(context.Background(), started)
		return fmt.Errorf("start source %s: %w", p.source.Name(), err)
	}

	p.logger.Info("pipeline started")
	runErr := p.source.Run(ctx, func(fs *core.FieldSet) error {
		return p.Handle(ctx, fs)
	})
	if errors.Is(runErr, context.Canceled) {
		runErr = fmt.Errorf("%w: %v", core.ErrPipelineStopped, runErr)
	}

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := p.source.Stop(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}
	for _, r := range p.reporters {
		if err := r.Flush(context.Background()); err != nil {
			p.logger.WithError(err).WithField("reporter", r.Name()).Error("reporter flush failed")
			errs = append(errs, fmt.Errorf("flush reporter %s: %w", r.Name(), err))
			continue
		}
		f, ok := r.(plugin.Finisher)
		if !ok {
			continue
		}
		if runErr != nil {
			p.logger.WithField("reporter", r.Name()).Warn("capture incomplete, reporter output not finished")
			continue
		}
		if err := f.Finish(context.Background()); err != nil {
			p.logger.WithError(err).WithField("reporter", r.Name()).Error("reporter finish failed")
			errs = append(errs, fmt.Errorf("finish reporter %s: %w", r.Name(), err))
		}
	}
	p.stopReporters(context.Background(), p.reporters)

	stats := p.Stats()
	p.logger.WithFields(logrus.Fields{
		"received":       stats.Received,
		"retransmission": stats.Retransmission,
		"requests":       stats.Requests,
		"responses":      stats.Responses,
		"data":           stats.Data,
		"report_errors":  stats.ReportErrors,
	}).Info("pipeline finished")

	return errors.Join(errs...)
}

func (p *Pipeline) stopReporters(ctx context.Context, reporters []plugin.Reporter) {
	for _, r := range reporters {
		if err := r.Stop(ctx); err != nil {
			p.logger.WithError(err).WithField("reporter", r.Name()).Warn("reporter stop failed")
		}
	}
}

// Handle processes a single packet. It never fails; reporter errors are
// counted and logged.
func (p *Pipeline) Handle(ctx context.Context, fs *core.FieldSet) error {
	p.metrics.Received.Add(1)
	metrics.PacketsTotal.WithLabelValues(metrics.StageReceived).Inc()

	rec, source, ok := extract.Build(fs)
	if !ok {
		p.metrics.Retransmission.Add(1)
		metrics.PacketsTotal.WithLabelValues(metrics.StageRetransmit).Inc()
		p.logger.WithField("frame", fs.FrameNumber).Debug("retransmission skipped")
		return nil
	}

	switch rec.Type {
	case core.RecordRequest:
		p.metrics.Requests.Add(1)
	case core.RecordResponse:
		p.metrics.Responses.Add(1)
	default:
		p.metrics.Data.Add(1)
	}
	observe(rec.Type.String(), source)

	reported := false
	for _, r := range p.reporters {
		if err := r.Report(ctx, &rec); err != nil {
			p.metrics.ReportErrors.Add(1)
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Inc()
			p.logger.WithError(err).WithField("reporter", r.Name()).
				WithField("frame", rec.FrameNumber).Error("reporter failed")
		} else {
			reported = true
		}
	}
	if reported {
		p.metrics.Reported.Add(1)
	}
	return nil
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:       p.metrics.Received.Load(),
		Retransmission: p.metrics.Retransmission.Load(),
		Requests:       p.metrics.Requests.Load(),
		Responses:      p.metrics.Responses.Load(),
		Data:           p.metrics.Data.Load(),
		Reported:       p.metrics.Reported.Load(),
		ReportErrors:   p.metrics.ReportErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received       uint64
	Retransmission uint64
	Requests       uint64
	Responses      uint64
	Data           uint64
	Reported       uint64
	ReportErrors   uint64
}
