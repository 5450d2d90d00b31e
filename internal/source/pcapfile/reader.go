package pcapfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flowanalyzer/internal/core"
)

// PacketReader is what both pcapgo readers offer.
type PacketReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

const pcapngMagic = 0x0A0D0D0A

var supportedLinkTypes = map[layers.LinkType]bool{
	layers.LinkTypeEthernet: true,
	layers.LinkTypeRaw:      true,
	layers.LinkTypeIPv4:     true,
	layers.LinkTypeIPv6:     true,
	layers.LinkTypeLinuxSLL: true,
	layers.LinkTypeNull:     true,
	layers.LinkTypeLoop:     true,
}

// NewReader sniffs the file magic and returns a pcap or pcapng reader.
func NewReader(r io.Reader) (PacketReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture magic: %w", err)
	}

	var pr PacketReader
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if !supportedLinkTypes[pr.LinkType()] {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownLinkType, pr.LinkType())
	}
	return pr, nil
}
