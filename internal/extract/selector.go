package extract

import "firestige.xyz/flowanalyzer/internal/core"

// HeaderSource identifies which engine field supplied the header bytes.
type HeaderSource uint8

const (
	SourceNone HeaderSource = iota
	SourceExportedPDU
	SourceReassembled
	SourcePayload
)

func (s HeaderSource) String() string {
	switch s {
	case SourceExportedPDU:
		return "exported_pdu"
	case SourceReassembled:
		return "reassembled"
	case SourcePayload:
		return "payload"
	default:
		return "none"
	}
}

// SelectHeaderSource picks the header bytes in trust order: exported PDU,
// reassembled segments (only with a segment count), then the raw TCP payload.
func SelectHeaderSource(fs *core.FieldSet) ([]byte, HeaderSource) {
	if b, ok := fs.ExportedPDU.Get(); ok {
		return b, SourceExportedPDU
	}
	if b, ok := fs.Reassembled.Get(); ok && fs.SegmentCount.Present {
		return b, SourceReassembled
	}
	if b, ok := fs.TCPPayload.Get(); ok {
		return b, SourcePayload
	}
	return nil, SourceNone
}
