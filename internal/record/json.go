package record

import (
	"encoding/json"
	"strconv"

	"firestige.xyz/flowanalyzer/internal/core"
)

// jsonRecord is the JSON shape of a record, for sinks that prefer it.
type jsonRecord struct {
	Type      string  `json:"type"`
	Frame     uint64  `json:"frame"`
	TimeEpoch string  `json:"time_epoch,omitempty"`
	Header    string  `json:"header_hex"`
	Body      string  `json:"body_hex"`
	URIOrCode string  `json:"uri_or_code"`
	RequestIn *uint64 `json:"request_in,omitempty"`
}

// MarshalJSON encodes rec with the same column semantics as the line format.
func MarshalJSON(rec *core.OutputRecord) ([]byte, error) {
	out := jsonRecord{
		Type:      rec.Type.Token(),
		Frame:     rec.FrameNumber,
		TimeEpoch: string(appendEpoch(nil, rec.TimeEpoch)),
		Header:    rec.HeaderHex,
		Body:      rec.BodyHex,
		URIOrCode: rec.URIOrCode,
	}
	if ref, ok := rec.RequestIn.Get(); ok {
		out.RequestIn = &ref
	}
	return json.Marshal(out)
}

// Key returns the frame that identifies rec's exchange: the request frame for
// responses that reference one, otherwise the record's own frame.
func Key(rec *core.OutputRecord) []byte {
	frame := rec.FrameNumber
	if ref, ok := rec.RequestIn.Get(); ok {
		frame = ref
	}
	return strconv.AppendUint(nil, frame, 10)
}
