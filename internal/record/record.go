// Package record implements the tab-separated record stream.
//
// Columns, in order: type, frame, time_epoch, header_hex, body_hex,
// uri_or_code, request_in. No header row and no trailing delimiter.
package record

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/flowanalyzer/internal/core"
)

const (
	separator = '\t'

	minColumns = 6
	numColumns = 7
)

// Append appends the line for rec (without newline) to dst.
func Append(dst []byte, rec *core.OutputRecord) []byte {
	dst = append(dst, rec.Type.Token()...)
	dst = append(dst, separator)
	dst = strconv.AppendUint(dst, rec.FrameNumber, 10)
	dst = append(dst, separator)
	dst = appendEpoch(dst, rec.TimeEpoch)
	dst = append(dst, separator)
	dst = append(dst, rec.HeaderHex...)
	dst = append(dst, separator)
	dst = append(dst, rec.BodyHex...)
	dst = append(dst, separator)
	dst = append(dst, rec.URIOrCode...)
	dst = append(dst, separator)
	if ref, ok := rec.RequestIn.Get(); ok {
		dst = strconv.AppendUint(dst, ref, 10)
	}
	return dst
}

// Format returns the line for rec without newline.
func Format(rec *core.OutputRecord) string {
	return string(Append(make([]byte, 0, lineSize(rec)), rec))
}

func lineSize(rec *core.OutputRecord) int {
	return 64 + len(rec.HeaderHex) + len(rec.BodyHex) + len(rec.URIOrCode)
}

// appendEpoch writes seconds with a fixed nine-digit fraction.
func appendEpoch(dst []byte, epoch core.Field[time.Time]) []byte {
	t, ok := epoch.Get()
	if !ok {
		return dst
	}
	dst = strconv.AppendInt(dst, t.Unix(), 10)
	dst = append(dst, '.')
	ns := strconv.Itoa(t.Nanosecond())
	for i := len(ns); i < 9; i++ {
		dst = append(dst, '0')
	}
	return append(dst, ns...)
}

// ParseEpoch parses decimal seconds such as "1700000000.123456789".
// Fractions longer than nanoseconds are truncated.
func ParseEpoch(s string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch seconds %q: %w", s, err)
	}
	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil || nsec < 0 {
			return time.Time{}, fmt.Errorf("invalid epoch fraction %q", s)
		}
	}
	return time.Unix(sec, nsec), nil
}

// Parse decodes one line of the record stream. A missing request_in column
// is tolerated; anything else out of shape is ErrMalformedRecord.
func Parse(line string) (core.OutputRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	cols := strings.Split(line, string(separator))
	if len(cols) < minColumns || len(cols) > numColumns {
		return core.OutputRecord{}, fmt.Errorf("%w: %d columns", core.ErrMalformedRecord, len(cols))
	}

	var rec core.OutputRecord
	typ, ok := core.ParseRecordType(cols[0])
	if !ok {
		return rec, fmt.Errorf("%w: unknown type %q", core.ErrMalformedRecord, cols[0])
	}
	rec.Type = typ

	frame, err := strconv.ParseUint(cols[1], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("%w: frame %q", core.ErrMalformedRecord, cols[1])
	}
	rec.FrameNumber = frame

	if cols[2] != "" {
		ts, err := ParseEpoch(cols[2])
		if err != nil {
			return rec, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
		}
		rec.TimeEpoch = core.Some(ts)
	}

	if !isHex(cols[3]) || !isHex(cols[4]) {
		return rec, fmt.Errorf("%w: non-hex payload column", core.ErrMalformedRecord)
	}
	rec.HeaderHex = cols[3]
	rec.BodyHex = cols[4]
	rec.URIOrCode = cols[5]

	if len(cols) == numColumns && cols[6] != "" {
		ref, err := strconv.ParseUint(cols[6], 10, 64)
		if err != nil {
			return rec, fmt.Errorf("%w: request_in %q", core.ErrMalformedRecord, cols[6])
		}
		rec.RequestIn = core.Some(ref)
	}
	return rec, nil
}

// Decode turns a hex column back into bytes.
func Decode(hexStr string) ([]byte, error) {
	if hexStr == "" {
		return nil, nil
	}
	return hex.DecodeString(hexStr)
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
