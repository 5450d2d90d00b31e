// Package core defines dissector field identifiers.
package core

// Dissector field identifiers following the {protocol}.{field} convention.
const (
	FieldResponseCode   = "http.response.code"
	FieldRequestIn      = "http.request_in"
	FieldReassembled    = "tcp.reassembled.data"
	FieldFrameNumber    = "frame.number"
	FieldTCPPayload     = "tcp.payload"
	FieldTimeEpoch      = "frame.time_epoch"
	FieldExportedPDU    = "exported_pdu.exported_pdu"
	FieldFullURI        = "http.request.full_uri"
	FieldFileData       = "http.file_data"
	FieldSegmentCount   = "tcp.segment_count"
	FieldRetransmission = "tcp.analysis.retransmission"
)

// Fields lists every identifier the pipeline consumes, in engine column order.
var Fields = []string{
	FieldResponseCode,
	FieldRequestIn,
	FieldReassembled,
	FieldFrameNumber,
	FieldTCPPayload,
	FieldTimeEpoch,
	FieldExportedPDU,
	FieldFullURI,
	FieldFileData,
	FieldSegmentCount,
	FieldRetransmission,
}
