// Package pcapfile is a native capture engine: it reads pcap and pcapng files
// with gopacket and dissects HTTP over TCP itself.
package pcapfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/metrics"
	"firestige.xyz/flowanalyzer/internal/utils"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

const Name = "pcap"

// DefaultPairTTL bounds how long an unanswered request stays pairable.
const DefaultPairTTL = 5 * time.Minute

// Config holds native source configuration.
type Config struct {
	Pcap    string        `mapstructure:"pcap"`
	Filter  string        `mapstructure:"filter"`   // "http" or a BPF expression
	BPF     string        `mapstructure:"bpf"`      // optional frame pre-filter
	PairTTL time.Duration `mapstructure:"pair_ttl"` // request pairing window
}

// Source is a plugin.Source over a capture file.
type Source struct {
	cfg    Config
	filter config.Filter
	logger *logrus.Entry
}

// New creates a native source.
func New(pcap string, filter config.Filter, bpf string, pairTTL time.Duration) *Source {
	s := &Source{
		cfg:    Config{Pcap: pcap, Filter: filter.String(), BPF: bpf, PairTTL: pairTTL},
		filter: filter,
		logger: log.GetLogger().WithField("source", Name),
	}
	if s.cfg.PairTTL <= 0 {
		s.cfg.PairTTL = DefaultPairTTL
	}
	return s
}

// NewSource is the registry factory.
func NewSource() plugin.Source {
	return New("", config.NewFilter(""), "", DefaultPairTTL)
}

func (s *Source) Name() string { return Name }

// Init decodes the source's config block.
func (s *Source) Init(cfg map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &s.cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode pcap config: %w", err)
	}
	s.filter = config.NewFilter(s.cfg.Filter)
	if s.cfg.PairTTL <= 0 {
		s.cfg.PairTTL = DefaultPairTTL
	}
	return nil
}

// Start checks the capture file exists.
func (s *Source) Start(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.Pcap); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrCaptureNotFound, s.cfg.Pcap, err)
	}
	return nil
}

func (s *Source) Stop(ctx context.Context) error { return nil }

// Run reads the capture and delivers matching frames in file order.
func (s *Source) Run(ctx context.Context, fn plugin.PacketFunc) error {
	f, err := os.Open(s.cfg.Pcap)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCaptureNotFound, err)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return err
	}
	return s.run(ctx, r, fn)
}

func (s *Source) run(ctx context.Context, r PacketReader, fn plugin.PacketFunc) error {
	linkType := r.LinkType()

	var pre, display *utils.Matcher
	var err error
	if s.cfg.BPF != "" {
		if pre, err = utils.NewMatcher(linkType, s.cfg.BPF); err != nil {
			return err
		}
	}
	if !s.filter.IsDefault() {
		if display, err = utils.NewMatcher(linkType, s.filter.String()); err != nil {
			return err
		}
	}

	t := newTracker(s.cfg.PairTTL, s.logger)
	s.logger.WithField("pcap", s.cfg.Pcap).WithField("filter", s.filter.String()).
		WithField("link_type", linkType.String()).Info("reading capture")

	var (
		fs    core.FieldSet
		frame uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", frame+1, err)
		}
		frame++

		if pre != nil && !pre.Match(data) {
			continue
		}
		pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		seg, ok := segmentOf(pkt)
		if !ok {
			continue
		}

		fs.Reset()
		fs.FrameNumber = frame
		fs.TimeEpoch = core.Some(ci.Timestamp)
		isHTTP := t.track(seg, &fs)

		deliver := isHTTP
		if display != nil {
			deliver = fs.TCPPayload.Present && display.Match(data)
		}
		if !deliver {
			metrics.PacketsTotal.WithLabelValues(metrics.StageSkipped).Inc()
			continue
		}
		if err := fn(&fs); err != nil {
			return err
		}
	}
}
