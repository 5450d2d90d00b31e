package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/core"
	"firestige.xyz/flowanalyzer/internal/store"
	"firestige.xyz/flowanalyzer/pkg/plugin"
	"firestige.xyz/flowanalyzer/plugins/reporter/sqlite"
)

// MockSource replays a fixed list of field sets.
type MockSource struct {
	packets []core.FieldSet
	runErr  error
	started bool
	stopped bool
}

func (m *MockSource) Name() string                  { return "mock" }
func (m *MockSource) Init(cfg map[string]any) error { return nil }
func (m *MockSource) Start(ctx context.Context) error {
	m.started = true
	return nil
}
func (m *MockSource) Stop(ctx context.Context) error {
	m.stopped = true
	return nil
}

func (m *MockSource) Run(ctx context.Context, fn plugin.PacketFunc) error {
	for i := range m.packets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&m.packets[i]); err != nil {
			return err
		}
	}
	return m.runErr
}

// MockReporter records every report through testify's mock.
type MockReporter struct {
	mock.Mock
	records []core.OutputRecord
}

func (m *MockReporter) Name() string                    { return "mock" }
func (m *MockReporter) Init(cfg map[string]any) error   { return nil }
func (m *MockReporter) Start(ctx context.Context) error { return m.Called().Error(0) }
func (m *MockReporter) Stop(ctx context.Context) error  { return m.Called().Error(0) }
func (m *MockReporter) Flush(ctx context.Context) error { return m.Called().Error(0) }

func (m *MockReporter) Report(ctx context.Context, rec *core.OutputRecord) error {
	m.records = append(m.records, *rec)
	return m.Called(rec.FrameNumber).Error(0)
}

// MockFinisher is a reporter that also seals its output.
type MockFinisher struct {
	MockReporter
}

func (m *MockFinisher) Finish(ctx context.Context) error { return m.Called().Error(0) }

func newReporter() *MockReporter {
	r := &MockReporter{}
	r.On("Start").Return(nil)
	r.On("Stop").Return(nil)
	r.On("Flush").Return(nil)
	return r
}

func samplePackets() []core.FieldSet {
	return []core.FieldSet{
		{
			FrameNumber: 1,
			FullURI:     core.Some("http://example.com/"),
			TCPPayload:  core.Some([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")),
		},
		{
			FrameNumber:    2,
			ResponseCode:   core.Some(200),
			TCPPayload:     core.Some([]byte("HTTP/1.1 200 OK\r\n\r\n")),
			Retransmission: core.Some(true),
		},
		{
			FrameNumber:  3,
			ResponseCode: core.Some(200),
			RequestIn:    core.Some[uint64](1),
			Reassembled:  core.Some([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi")),
			SegmentCount: core.Some(2),
			FileData:     core.Some([]byte("hi")),
		},
		{
			FrameNumber: 4,
		},
	}
}

func TestPipelineRun(t *testing.T) {
	src := &MockSource{packets: samplePackets()}
	rep := newReporter()
	rep.On("Report", mock.Anything).Return(nil)

	p := New(Config{Source: src, Reporters: []plugin.Reporter{rep}})
	require.NoError(t, p.Run(context.Background()))

	assert.True(t, src.started)
	assert.True(t, src.stopped)
	rep.AssertCalled(t, "Flush")
	rep.AssertCalled(t, "Stop")

	require.Len(t, rep.records, 3)
	assert.Equal(t, core.RecordRequest, rep.records[0].Type)
	assert.Equal(t, "http://example.com/", rep.records[0].URIOrCode)
	assert.Equal(t, "474554202F20485454502F312E310D0A486F73743A206578616D706C652E636F6D0D0A", rep.records[0].HeaderHex)

	assert.Equal(t, core.RecordResponse, rep.records[1].Type)
	assert.Equal(t, uint64(3), rep.records[1].FrameNumber)
	assert.Equal(t, "200", rep.records[1].URIOrCode)
	assert.Equal(t, "6869", rep.records[1].BodyHex)
	assert.Equal(t, core.Some[uint64](1), rep.records[1].RequestIn)

	assert.Equal(t, core.RecordData, rep.records[2].Type)
	assert.Empty(t, rep.records[2].HeaderHex)
	assert.Empty(t, rep.records[2].URIOrCode)

	stats := p.Stats()
	assert.Equal(t, Stats{
		Received:       4,
		Retransmission: 1,
		Requests:       1,
		Responses:      1,
		Data:           1,
		Reported:       3,
	}, stats)
}

func TestPipelineReporterErrorContinues(t *testing.T) {
	src := &MockSource{packets: samplePackets()}
	failing := newReporter()
	failing.On("Report", uint64(1)).Return(errors.New("sink down"))
	failing.On("Report", mock.Anything).Return(nil)
	ok := newReporter()
	ok.On("Report", mock.Anything).Return(nil)

	p := New(Config{Source: src, Reporters: []plugin.Reporter{failing, ok}})
	require.NoError(t, p.Run(context.Background()))

	assert.Len(t, ok.records, 3)
	assert.Equal(t, uint64(1), p.Stats().ReportErrors)
}

func TestPipelineSourceError(t *testing.T) {
	engineErr := errors.New("engine exited")
	src := &MockSource{packets: samplePackets()[:1], runErr: engineErr}
	rep := newReporter()
	rep.On("Report", mock.Anything).Return(nil)

	p := New(Config{Source: src, Reporters: []plugin.Reporter{rep}})
	err := p.Run(context.Background())
	require.ErrorIs(t, err, engineErr)

	// records produced before the failure are still flushed
	rep.AssertCalled(t, "Flush")
	assert.Len(t, rep.records, 1)
}

func TestPipelineReportedNeedsOneSuccess(t *testing.T) {
	src := &MockSource{packets: samplePackets()}
	a := newReporter()
	a.On("Report", uint64(1)).Return(errors.New("sink down"))
	a.On("Report", mock.Anything).Return(nil)
	b := newReporter()
	b.On("Report", uint64(1)).Return(errors.New("sink down"))
	b.On("Report", mock.Anything).Return(nil)

	p := New(Config{Source: src, Reporters: []plugin.Reporter{a, b}})
	require.NoError(t, p.Run(context.Background()))

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Reported)
	assert.Equal(t, uint64(2), stats.ReportErrors)
}

func TestPipelineFinishesAfterCleanRun(t *testing.T) {
	rep := &MockFinisher{}
	rep.On("Start").Return(nil)
	rep.On("Stop").Return(nil)
	rep.On("Flush").Return(nil)
	rep.On("Finish").Return(nil)
	rep.On("Report", mock.Anything).Return(nil)

	p := New(Config{Source: &MockSource{packets: samplePackets()}, Reporters: []plugin.Reporter{rep}})
	require.NoError(t, p.Run(context.Background()))
	rep.AssertCalled(t, "Finish")
}

func TestPipelineSkipsFinishAfterSourceError(t *testing.T) {
	rep := &MockFinisher{}
	rep.On("Start").Return(nil)
	rep.On("Stop").Return(nil)
	rep.On("Flush").Return(nil)
	rep.On("Report", mock.Anything).Return(nil)

	src := &MockSource{packets: samplePackets()[:1], runErr: errors.New("tshark failed: boom")}
	p := New(Config{Source: src, Reporters: []plugin.Reporter{rep}})
	require.Error(t, p.Run(context.Background()))
	rep.AssertCalled(t, "Flush")
	rep.AssertNotCalled(t, "Finish")
}

func TestPipelineFailedRunLeavesCacheInvalid(t *testing.T) {
	tests := []struct {
		name   string
		runErr error
		valid  bool
	}{
		{"clean run", nil, true},
		{"source failed", errors.New("tshark failed: boom"), false},
		{"cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			pcap := filepath.Join(dir, "cap.pcap")
			require.NoError(t, os.WriteFile(pcap, []byte("capture"), 0644))

			db := sqlite.NewSQLiteReporter()
			require.NoError(t, db.Init(map[string]any{"pcap": pcap}))

			src := &MockSource{packets: samplePackets()[:1], runErr: tt.runErr}
			err := New(Config{Source: src, Reporters: []plugin.Reporter{db}}).Run(context.Background())
			if tt.runErr == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}

			ctx := context.Background()
			assert.Equal(t, tt.valid, store.Valid(ctx, store.DefaultPath(pcap), pcap, config.NewFilter("")))
		})
	}
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &MockSource{packets: samplePackets()}
	rep := newReporter()

	p := New(Config{Source: src, Reporters: []plugin.Reporter{rep}})
	err := p.Run(ctx)
	assert.ErrorIs(t, err, core.ErrPipelineStopped)
	assert.Empty(t, rep.records)
}

func TestPipelineReporterStartFails(t *testing.T) {
	src := &MockSource{}
	first := newReporter()
	broken := &MockReporter{}
	broken.On("Start").Return(errors.New("no broker"))

	p := New(Config{Source: src, Reporters: []plugin.Reporter{first, broken}})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, src.started)
	first.AssertCalled(t, "Stop")
}

func TestPipelineWithoutSource(t *testing.T) {
	p := New(Config{})
	assert.ErrorIs(t, p.Run(context.Background()), core.ErrSourceNotFound)
}

func TestMetricsReset(t *testing.T) {
	m := &Metrics{}
	m.Received.Add(3)
	m.ReportErrors.Add(1)
	m.Reset()
	assert.Zero(t, m.Received.Load())
	assert.Zero(t, m.ReportErrors.Load())
}
