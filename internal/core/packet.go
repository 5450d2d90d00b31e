// Package core defines core data structures with zero external dependencies.
package core

import "time"

// FieldSet is the per-packet view of the dissection engine's output.
// It is owned by the engine for the duration of one callback; consumers
// must not retain it or any of its byte slices afterwards.
type FieldSet struct {
	FrameNumber uint64 // 1-based frame number, always present

	ResponseCode   Field[int]
	FullURI        Field[string]
	TimeEpoch      Field[time.Time]
	Reassembled    Field[[]byte] // tcp.reassembled.data
	TCPPayload     Field[[]byte] // tcp.payload
	FileData       Field[[]byte] // http.file_data
	SegmentCount   Field[int]    // tcp.segment_count
	Retransmission Field[bool]   // tcp.analysis.retransmission
	ExportedPDU    Field[[]byte] // exported_pdu.exported_pdu
	RequestIn      Field[uint64] // http.request_in
}

// Reset clears fs for reuse by an engine between callbacks.
func (fs *FieldSet) Reset() {
	*fs = FieldSet{}
}

// OutputRecord is the fixed-shape record emitted for every accepted packet.
type OutputRecord struct {
	Type        RecordType
	FrameNumber uint64
	TimeEpoch   Field[time.Time]
	HeaderHex   string
	BodyHex     string
	URIOrCode   string
	RequestIn   Field[uint64]
}
