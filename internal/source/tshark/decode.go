package tshark

import (
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/metrics"
	"firestige.xyz/flowanalyzer/internal/record"
	"firestige.xyz/flowanalyzer/pkg/plugin"
)

// Column positions, matching core.Fields.
const (
	colResponseCode = iota
	colRequestIn
	colReassembled
	colFrameNumber
	colTCPPayload
	colTimeEpoch
	colExportedPDU
	colFullURI
	colFileData
	colSegmentCount
	colRetransmission
	numColumns
)

// Decode reads tshark's field output from r and calls fn once per row.
// Rows without a parsable frame number are skipped. The FieldSet passed to fn
// is reused between rows.
func Decode(r io.Reader, fn plugin.PacketFunc, logger *logrus.Entry) error {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var fs core.FieldSet
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.WithError(err).Debug("skipping unreadable tshark row")
				metrics.PacketsTotal.WithLabelValues(metrics.StageSkipped).Inc()
				continue
			}
			return fmt.Errorf("read tshark output: %w", err)
		}

		fs.Reset()
		if err := fillFieldSet(&fs, row, logger); err != nil {
			logger.WithError(err).Debug("skipping tshark row")
			metrics.PacketsTotal.WithLabelValues(metrics.StageSkipped).Inc()
			continue
		}
		if err := fn(&fs); err != nil {
			return err
		}
	}
}

func column(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// fillFieldSet converts one row. Empty columns stay absent; a column that
// does not parse is treated as absent too, except the frame number.
func fillFieldSet(fs *core.FieldSet, row []string, logger *logrus.Entry) error {
	frame, err := strconv.ParseUint(column(row, colFrameNumber), 10, 64)
	if err != nil {
		return fmt.Errorf("frame number %q: %w", column(row, colFrameNumber), err)
	}
	fs.FrameNumber = frame
	logger = logger.WithField("frame", frame)

	if v := column(row, colResponseCode); v != "" {
		if code, err := strconv.Atoi(v); err == nil {
			fs.ResponseCode = core.Some(code)
		} else {
			logger.WithField("value", v).Debug("bad response code")
		}
	}
	if v := column(row, colRequestIn); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			fs.RequestIn = core.Some(n)
		} else {
			logger.WithField("value", v).Debug("bad request_in")
		}
	}
	if v := column(row, colTimeEpoch); v != "" {
		if ts, err := record.ParseEpoch(v); err == nil {
			fs.TimeEpoch = core.Some(ts)
		} else {
			logger.WithField("value", v).Debug("bad time_epoch")
		}
	}
	if v := column(row, colFullURI); v != "" {
		fs.FullURI = core.Some(v)
	}
	if v := column(row, colSegmentCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fs.SegmentCount = core.Some(n)
		}
	}
	if column(row, colRetransmission) != "" {
		fs.Retransmission = core.Some(true)
	}

	fs.Reassembled = hexField(column(row, colReassembled))
	fs.TCPPayload = hexField(column(row, colTCPPayload))
	fs.ExportedPDU = hexField(column(row, colExportedPDU))

	// http.file_data is hex on recent tshark and literal text on older ones.
	if colFileData < len(row) && row[colFileData] != "" {
		v := row[colFileData]
		if b := hexField(v); b.Present {
			fs.FileData = b
		} else {
			fs.FileData = core.Some([]byte(v))
		}
	}
	return nil
}

// hexField decodes a byte column, tolerating colon separators.
func hexField(v string) core.Field[[]byte] {
	if v == "" {
		return core.None[[]byte]()
	}
	b, err := hex.DecodeString(strings.ReplaceAll(v, ":", ""))
	if err != nil {
		return core.None[[]byte]()
	}
	return core.Some(b)
}
