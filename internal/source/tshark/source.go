// Package tshark runs the Wireshark command-line dissector over a capture
// file and turns its field output into per-packet field sets.
package tshark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

const Name = "tshark"

// Candidates are tried in order when no explicit binary path is configured.
var Candidates = []string{"tshark", "/usr/bin/tshark", "/usr/local/bin/tshark", "/opt/homebrew/bin/tshark"}

// Config holds tshark source configuration.
type Config struct {
	Path   string `mapstructure:"path"`   // tshark binary; empty = search
	Pcap   string `mapstructure:"pcap"`   // capture file to read
	Filter string `mapstructure:"filter"` // display filter; empty = "http"
}

// Source is a plugin.Source backed by a tshark child process.
type Source struct {
	cfg    Config
	filter config.Filter
	bin    string
	logger *logrus.Entry
}

// New creates a tshark source for the given capture and filter.
func New(path, pcap string, filter config.Filter) *Source {
	return &Source{
		cfg:    Config{Path: path, Pcap: pcap, Filter: filter.String()},
		filter: filter,
		logger: log.GetLogger().WithField("source", Name),
	}
}

// NewSource is the registry factory.
func NewSource() plugin.Source {
	return New("", "", config.NewFilter(""))
}

func (s *Source) Name() string { return Name }

// Init decodes the source's config block.
func (s *Source) Init(cfg map[string]any) error {
	if err := mapstructure.Decode(cfg, &s.cfg); err != nil {
		return fmt.Errorf("decode tshark config: %w", err)
	}
	s.filter = config.NewFilter(s.cfg.Filter)
	return nil
}

// Start resolves the tshark binary and checks the capture file exists.
func (s *Source) Start(ctx context.Context) error {
	bin, err := Find(s.cfg.Path)
	if err != nil {
		return err
	}
	s.bin = bin

	if _, err := os.Stat(s.cfg.Pcap); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrCaptureNotFound, s.cfg.Pcap, err)
	}
	s.logger.WithField("tshark", bin).WithField("filter", s.filter.String()).Info("tshark source ready")
	return nil
}

func (s *Source) Stop(ctx context.Context) error { return nil }

// Run executes tshark and feeds every row to fn. A non-zero exit is returned
// with tshark's stderr text.
func (s *Source) Run(ctx context.Context, fn plugin.PacketFunc) error {
	if s.bin == "" {
		return fmt.Errorf("tshark source not started")
	}

	cmd := exec.CommandContext(ctx, s.bin, Args(s.cfg.Pcap, s.filter)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("tshark stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tshark: %w", err)
	}

	decodeErr := Decode(stdout, fn, s.logger)
	if decodeErr != nil {
		// drain so the child can exit
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if decodeErr != nil {
		return decodeErr
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return fmt.Errorf("tshark failed: %s", msg)
	}
	return nil
}

// Find returns the tshark binary to use: path when it exists, otherwise the
// first candidate found on the system.
func Find(path string) (string, error) {
	if path != "" {
		if p, err := exec.LookPath(path); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", core.ErrTsharkNotFound, path)
	}
	for _, candidate := range Candidates {
		if p, err := exec.LookPath(candidate); err == nil {
			return p, nil
		}
	}
	return "", core.ErrTsharkNotFound
}

// Args builds the tshark command line for a capture and filter.
func Args(pcap string, filter config.Filter) []string {
	args := []string{"-r", pcap, "-Y", "(" + filter.String() + ")", "-T", "fields"}
	for _, f := range core.Fields {
		args = append(args, "-e", f)
	}
	return append(args,
		"-E", "header=n",
		"-E", "separator=|",
		"-E", "quote=d",
		"-E", "occurrence=f",
	)
}
