package cmd

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FLOWANALYZER_FILTER", "")
	configFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeExchange writes a capture with one request and its response.
func writeExchange(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Unix(1700000000, 0)
	add := func(fromClient bool, seq uint32, payload string) {
		src, dst := net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)
		sport, dport := layers.TCPPort(40000), layers.TCPPort(80)
		if !fromClient {
			src, dst, sport, dport = dst, src, dport, sport
		}
		eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}, DstMAC: net.HardwareAddr{0, 0, 0, 0, 0, 2}, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
		tcp := &layers.TCP{SrcPort: sport, DstPort: dport, Seq: seq, ACK: true, PSH: true, Window: 1024}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		sb := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(sb, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
			eth, ip, tcp, gopacket.Payload(payload)))
		ts = ts.Add(time.Millisecond)
		data := sb.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, data))
	}
	add(true, 1, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	add(false, 1, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi")

	path := filepath.Join(dir, "exchange.pcap")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestExtractCommand(t *testing.T) {
	pcap := writeExchange(t, t.TempDir())

	out, err := run(t, "extract", "--source", "pcap", pcap)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "req\t1\t1700000000.001000000\t474554202F20485454502F312E310D0A"), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "\t\thttp://example.com/\t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "rep\t2\t1700000000.002000000\t485454502F312E3120323030204F4B0D0A"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], "\t6869\t200\t1"), lines[1])
}

func TestExtractMissingCapture(t *testing.T) {
	_, err := run(t, "extract", "--source", "pcap", filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}

func TestPairsCommand(t *testing.T) {
	dir := t.TempDir()
	pcap := writeExchange(t, dir)

	out, err := run(t, "pairs", "--source", "pcap", pcap)
	require.NoError(t, err)
	assert.Equal(t, "1\t2\t200\thttp://example.com/\t2\n", out)
	assert.FileExists(t, filepath.Join(dir, "exchange.db"))

	// second run is served from the cache
	out, err = run(t, "pairs", "--source", "pcap", pcap)
	require.NoError(t, err)
	assert.Equal(t, "1\t2\t200\thttp://example.com/\t2\n", out)
}

func TestSplitCommandBelowThreshold(t *testing.T) {
	pcap := writeExchange(t, t.TempDir())
	out, err := run(t, "split", pcap, "-o", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, pcap+"\n", out)
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "config")
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	fa := doc["flowanalyzer"]
	require.NotNil(t, fa)
	assert.Equal(t, "http", fa["filter"])
	assert.Contains(t, fa, "source")
	assert.Contains(t, fa, "reporters")
}
