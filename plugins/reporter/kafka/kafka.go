// Package kafka implements Kafka reporter plugin.
// Sends records to Kafka in batches, keyed so that a response lands on the
// same partition as its request.
package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/record"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

const Name = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultEncoding     = "tsv"
)

// messageWriter is the part of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends records to Kafka.
type KafkaReporter struct {
	name    string
	writer  messageWriter
	config  Config
	pending []kafka.Message

	// Statistics
	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
	Encoding     string        `mapstructure:"encoding"`      // optional: tsv|json, default tsv
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{
		name: Name,
	}
}

// Name returns the plugin name.
func (r *KafkaReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *KafkaReporter) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka reporter requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
		Encoding:     defaultEncoding,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("invalid kafka config: %w", err)
	}

	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if cfg.Encoding != "tsv" && cfg.Encoding != "json" {
		return fmt.Errorf("invalid encoding: %s", cfg.Encoding)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // requests and their responses share a key
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false,
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	r.config = cfg
	r.writer = kafka.NewWriter(writerConfig)
	r.pending = make([]kafka.Message, 0, cfg.BatchSize)
	return nil
}

// Start starts the reporter.
func (r *KafkaReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("brokers", r.config.Brokers).
		WithField("topic", r.config.Topic).
		WithField("batch_size", r.config.BatchSize).
		WithField("compression", r.config.Compression).
		Info("kafka reporter started")
	return nil
}

// Stop closes the writer. Call Flush first to send buffered records.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing kafka writer")
			return err
		}
	}

	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).
		WithField("total_errors", r.errorCount.Load()).
		Info("kafka reporter stopped")
	return nil
}

// Report buffers a record and sends the batch once it is full.
func (r *KafkaReporter) Report(ctx context.Context, rec *core.OutputRecord) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}

	msg, err := r.message(rec)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize record failed: %w", err)
	}
	r.pending = append(r.pending, msg)
	if len(r.pending) >= r.config.BatchSize {
		return r.Flush(ctx)
	}
	return nil
}

func (r *KafkaReporter) message(rec *core.OutputRecord) (kafka.Message, error) {
	var value []byte
	if r.config.Encoding == "json" {
		b, err := record.MarshalJSON(rec)
		if err != nil {
			return kafka.Message{}, err
		}
		value = b
	} else {
		value = record.Append(nil, rec)
	}

	msg := kafka.Message{
		Key:     record.Key(rec),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(rec.Type.Token())}},
	}
	if ts, ok := rec.TimeEpoch.Get(); ok {
		msg.Time = ts
	}
	return msg, nil
}

// Flush sends buffered records.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	if len(r.pending) == 0 || r.writer == nil {
		return nil
	}
	n := len(r.pending)
	err := r.writer.WriteMessages(ctx, r.pending...)
	r.pending = r.pending[:0]
	if err != nil {
		r.errorCount.Add(uint64(n))
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(uint64(n))
	return nil
}
