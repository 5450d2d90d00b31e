package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowanalyzer/internal/core"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		rec  core.OutputRecord
		want string
	}{
		{
			name: "response with request reference",
			rec: core.OutputRecord{
				Type:        core.RecordResponse,
				FrameNumber: 9,
				TimeEpoch:   core.Some(time.Unix(1700000000, 123000000)),
				HeaderHex:   "48540D0A",
				BodyHex:     "6869",
				URIOrCode:   "200",
				RequestIn:   core.Some(uint64(8)),
			},
			want: "rep\t9\t1700000000.123000000\t48540D0A\t6869\t200\t8",
		},
		{
			name: "request without reference",
			rec: core.OutputRecord{
				Type:        core.RecordRequest,
				FrameNumber: 8,
				TimeEpoch:   core.Some(time.Unix(1700000000, 7)),
				HeaderHex:   "474554",
				URIOrCode:   "http://example.com/",
			},
			want: "req\t8\t1700000000.000000007\t474554\t\thttp://example.com/\t",
		},
		{
			name: "data with nothing",
			rec: core.OutputRecord{
				Type:        core.RecordData,
				FrameNumber: 1,
			},
			want: "data\t1\t\t\t\t\t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(&tt.rec))
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	rec := core.OutputRecord{
		Type:        core.RecordResponse,
		FrameNumber: 42,
		TimeEpoch:   core.Some(time.Unix(1600000000, 999999999)),
		HeaderHex:   "0D0A",
		BodyHex:     "00FF",
		URIOrCode:   "304",
		RequestIn:   core.Some(uint64(40)),
	}
	got, err := Parse(Format(&rec) + "\n")
	require.NoError(t, err)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.FrameNumber, got.FrameNumber)
	assert.True(t, rec.TimeEpoch.Value.Equal(got.TimeEpoch.Value))
	assert.Equal(t, rec.HeaderHex, got.HeaderHex)
	assert.Equal(t, rec.BodyHex, got.BodyHex)
	assert.Equal(t, rec.URIOrCode, got.URIOrCode)
	assert.Equal(t, rec.RequestIn, got.RequestIn)
}

func TestParse(t *testing.T) {
	t.Run("six columns tolerated", func(t *testing.T) {
		rec, err := Parse("req\t3\t1.5\t47\t\thttp://h/")
		require.NoError(t, err)
		assert.Equal(t, core.RecordRequest, rec.Type)
		assert.False(t, rec.RequestIn.Present)
		assert.Equal(t, int64(500000000), int64(rec.TimeEpoch.Value.Nanosecond()))
	})

	t.Run("empty epoch stays absent", func(t *testing.T) {
		rec, err := Parse("data\t3\t\t\t\t\t")
		require.NoError(t, err)
		assert.False(t, rec.TimeEpoch.Present)
	})

	bad := map[string]string{
		"too few columns":  "req\t1\t2",
		"too many columns": "req\t1\t\t\t\t\t\textra",
		"unknown type":     "request\t1\t\t\t\t\t",
		"bad frame":        "req\tx\t\t\t\t\t",
		"odd header":       "req\t1\t\tABC\t\t\t",
		"lower-case body":  "req\t1\t\t\tab\t\t",
		"bad request_in":   "rep\t1\t\t\t\t200\tx",
		"bad epoch":        "rep\t1\tabc\t\t\t200\t",
	}
	for name, line := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(line)
			assert.ErrorIs(t, err, core.ErrMalformedRecord)
		})
	}
}

func TestParseEpoch(t *testing.T) {
	ts, err := ParseEpoch("1700000000.1234567891")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())
	assert.Equal(t, 123456789, ts.Nanosecond())

	ts, err = ParseEpoch("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), ts.Unix())
	assert.Equal(t, 0, ts.Nanosecond())

	_, err = ParseEpoch("1.-5")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	b, err := Decode("48540D0A")
	require.NoError(t, err)
	assert.Equal(t, []byte("HT\r\n"), b)

	b, err = Decode("")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMarshalJSON(t *testing.T) {
	rec := core.OutputRecord{
		Type:        core.RecordResponse,
		FrameNumber: 8,
		TimeEpoch:   core.Some(time.Unix(5, 1)),
		HeaderHex:   "4142",
		URIOrCode:   "200",
		RequestIn:   core.Some[uint64](3),
	}
	b, err := MarshalJSON(&rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"rep","frame":8,"time_epoch":"5.000000001","header_hex":"4142","body_hex":"","uri_or_code":"200","request_in":3}`, string(b))

	data := core.OutputRecord{Type: core.RecordData, FrameNumber: 2}
	b, err = MarshalJSON(&data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"data","frame":2,"header_hex":"","body_hex":"","uri_or_code":""}`, string(b))
}

func TestKey(t *testing.T) {
	req := core.OutputRecord{Type: core.RecordRequest, FrameNumber: 3}
	rep := core.OutputRecord{Type: core.RecordResponse, FrameNumber: 8, RequestIn: core.Some[uint64](3)}
	assert.Equal(t, "3", string(Key(&req)))
	assert.Equal(t, "3", string(Key(&rep)))
}
