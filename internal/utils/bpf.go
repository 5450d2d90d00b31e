// Package utils holds small helpers shared by the capture sources.
package utils

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// DefaultSnapLen is large enough that BPF programs never truncate a frame.
const DefaultSnapLen = 262144

// CompileBpf compiles a tcpdump-style expression for the given link type.
func CompileBpf(linkType layers.LinkType, filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}

// Matcher runs a compiled BPF program in userspace over captured frames.
type Matcher struct {
	vm *bpf.VM
}

// NewMatcher compiles filter and loads it into a BPF VM.
func NewMatcher(linkType layers.LinkType, filter string) (*Matcher, error) {
	raw, err := CompileBpf(linkType, filter, DefaultSnapLen)
	if err != nil {
		return nil, err
	}
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("failed to disassemble BPF program for %q", filter)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF program: %w", err)
	}
	return &Matcher{vm: vm}, nil
}

// Match reports whether the frame passes the filter.
func (m *Matcher) Match(frame []byte) bool {
	n, err := m.vm.Run(frame)
	return err == nil && n > 0
}
