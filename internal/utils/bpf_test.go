package utils

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpFrame(t *testing.T, srcPort, dstPort layers.TCPPort) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: srcPort, DstPort: dstPort, Seq: 1, PSH: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload("x")))
	return buf.Bytes()
}

func TestCompileBpf(t *testing.T) {
	raw, err := CompileBpf(layers.LinkTypeEthernet, "tcp port 80", DefaultSnapLen)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestCompileBpfInvalid(t *testing.T) {
	_, err := CompileBpf(layers.LinkTypeEthernet, "not a ( filter", DefaultSnapLen)
	assert.Error(t, err)
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(layers.LinkTypeEthernet, "tcp port 80")
	require.NoError(t, err)

	assert.True(t, m.Match(tcpFrame(t, 51000, 80)))
	assert.True(t, m.Match(tcpFrame(t, 80, 51000)))
	assert.False(t, m.Match(tcpFrame(t, 51000, 8080)))
	assert.False(t, m.Match([]byte{0x00}))
}
