package extract

import "firestige.xyz/flowanalyzer/internal/core"

// IsRetransmission reports whether the engine flagged the packet as a
// retransmitted segment. An absent flag means not retransmitted.
func IsRetransmission(fs *core.FieldSet) bool {
	v, ok := fs.Retransmission.Get()
	return ok && v
}

// Build turns one packet's fields into its output record. It returns false
// for retransmissions, which produce no record.
func Build(fs *core.FieldSet) (core.OutputRecord, HeaderSource, bool) {
	if IsRetransmission(fs) {
		return core.OutputRecord{}, SourceNone, false
	}

	typ, uriOrCode := Classify(fs.ResponseCode, fs.FullURI)

	rec := core.OutputRecord{
		Type:        typ,
		FrameNumber: fs.FrameNumber,
		TimeEpoch:   fs.TimeEpoch,
		BodyHex:     BodyHex(fs),
		URIOrCode:   uriOrCode,
		RequestIn:   fs.RequestIn,
	}

	src, source := SelectHeaderSource(fs)
	if source != SourceNone {
		rec.HeaderHex = HeaderPreview(src)
	}
	return rec, source, true
}
