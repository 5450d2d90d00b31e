// Package split divides a large capture into TCP-flow-balanced chunks that can
// be dissected in parallel.
package split

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/source/pcapfile"
)

const (
	DefaultThresholdMB = 10
	DefaultChunks      = 3

	snapLen = 262144
)

type packet struct {
	ci   gopacket.CaptureInfo
	data []byte
	seq  int // position in the capture
}

type stream struct {
	key     string
	size    int
	packets []packet
}

type bucket struct {
	index   int
	size    int
	streams []*stream
}

// Split writes <outDir>/batch_<i>.pcap files, each holding whole TCP streams
// with total sizes as even as the greedy longest-first assignment allows.
// Captures smaller than thresholdMB are returned unchanged. A capture with no
// TCP streams yields no files.
func Split(path, outDir string, thresholdMB float64, chunks int) ([]string, error) {
	logger := log.GetLogger().WithField("pcap", path)

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrCaptureNotFound, path)
	}
	sizeMB := float64(fi.Size()) / (1024 * 1024)
	if sizeMB < thresholdMB {
		logger.WithField("size_mb", sizeMB).Info("capture below threshold, not splitting")
		return []string{path}, nil
	}
	if chunks <= 0 {
		chunks = DefaultChunks
	}

	streams, linkType, err := readStreams(path)
	if err != nil {
		return nil, err
	}
	logger.WithField("streams", len(streams)).Info("grouped tcp streams")
	if len(streams) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	buckets := assign(streams, chunks)
	files := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out := filepath.Join(outDir, fmt.Sprintf("batch_%d.pcap", b.index))
		if err := writeBucket(out, linkType, b); err != nil {
			return nil, err
		}
		logger.WithField("file", out).WithField("streams", len(b.streams)).
			WithField("bytes", b.size).Info("wrote chunk")
		files = append(files, out)
	}
	return files, nil
}

func readStreams(path string) ([]*stream, layers.LinkType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r, err := pcapfile.NewReader(f)
	if err != nil {
		return nil, 0, err
	}
	linkType := r.LinkType()

	byKey := make(map[string]*stream)
	var order []*stream
	for seq := 0; ; seq++ {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read packet: %w", err)
		}

		key, ok := streamKey(gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true}))
		if !ok {
			continue
		}
		s, ok := byKey[key]
		if !ok {
			s = &stream{key: key}
			byKey[key] = s
			order = append(order, s)
		}
		s.packets = append(s.packets, packet{ci: ci, data: data, seq: seq})
		s.size += len(data)
	}
	return order, linkType, nil
}

// streamKey canonicalizes both directions of a TCP connection to one key.
func streamKey(pkt gopacket.Packet) (string, bool) {
	nl := pkt.NetworkLayer()
	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if nl == nil || !ok {
		return "", false
	}
	nf, tf := nl.NetworkFlow(), tcp.TransportFlow()
	a := nf.Src().String() + ":" + tf.Src().String()
	b := nf.Dst().String() + ":" + tf.Dst().String()
	if b < a {
		a, b = b, a
	}
	return a + "|" + b, true
}

// assign places streams, largest first, into the currently lightest bucket.
// Ties go to the lower bucket index.
func assign(streams []*stream, chunks int) []*bucket {
	n := chunks
	if len(streams) < n {
		n = len(streams)
	}
	buckets := make([]*bucket, n)
	for i := range buckets {
		buckets[i] = &bucket{index: i}
	}

	sorted := append([]*stream(nil), streams...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].size > sorted[j].size })

	for _, s := range sorted {
		lightest := buckets[0]
		for _, b := range buckets[1:] {
			if b.size < lightest.size {
				lightest = b
			}
		}
		lightest.size += s.size
		lightest.streams = append(lightest.streams, s)
	}
	return buckets
}

// writeBucket writes a bucket's packets in their original capture order.
func writeBucket(path string, linkType layers.LinkType, b *bucket) error {
	var pkts []packet
	for _, s := range b.streams {
		pkts = append(pkts, s.packets...)
	}
	sort.Slice(pkts, func(i, j int) bool { return pkts[i].seq < pkts[j].seq })

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := pcapgo.NewWriterNanos(f)
	if err := w.WriteFileHeader(snapLen, linkType); err != nil {
		f.Close()
		return fmt.Errorf("write header %s: %w", path, err)
	}
	for _, p := range pkts {
		if err := w.WritePacket(p.ci, p.data); err != nil {
			f.Close()
			return fmt.Errorf("write packet to %s: %w", path, err)
		}
	}
	return f.Close()
}
