package pcapfile

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"firestige.xyz/flowanalyzer/internal/core"
)

// segment is one TCP frame with its flow keys.
type segment struct {
	dirKey  string // src > dst
	connKey string // direction independent
	tcp     *layers.TCP
	payload []byte
}

func segmentOf(pkt gopacket.Packet) (segment, bool) {
	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return segment{}, false
	}
	nl := pkt.NetworkLayer()
	if nl == nil {
		return segment{}, false
	}
	nf, tf := nl.NetworkFlow(), tcp.TransportFlow()
	src := nf.Src().String() + ":" + tf.Src().String()
	dst := nf.Dst().String() + ":" + tf.Dst().String()

	conn := src + "|" + dst
	if dst < src {
		conn = dst + "|" + src
	}
	return segment{
		dirKey:  src + ">" + dst,
		connKey: conn,
		tcp:     tcp,
		payload: tcp.Payload,
	}, true
}

// seqBefore compares sequence numbers modulo 2^32.
func seqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// direction is the per-direction TCP and HTTP state.
type direction struct {
	nextSeq  uint32
	seqKnown bool

	active   bool
	buf      []byte
	segments int
}

func (d *direction) resetMessage() {
	d.active = false
	d.buf = d.buf[:0]
	d.segments = 0
}

// pendingRequest is an unanswered request and its capture time.
type pendingRequest struct {
	frame uint64
	ts    time.Time
}

// tracker follows TCP directions and the HTTP messages carried on them.
type tracker struct {
	dirs    map[string]*direction
	pending *cache.Cache // connKey -> []pendingRequest, oldest first
	pairTTL time.Duration
	logger  *logrus.Entry
}

func newTracker(pairTTL time.Duration, logger *logrus.Entry) *tracker {
	return &tracker{
		dirs:    make(map[string]*direction),
		pending: cache.New(cache.NoExpiration, 0),
		pairTTL: pairTTL,
		logger:  logger,
	}
}

func (t *tracker) direction(key string) *direction {
	d, ok := t.dirs[key]
	if !ok {
		d = &direction{}
		t.dirs[key] = d
	}
	return d
}

// track updates state with seg and fills fs. It reports whether the frame is
// an HTTP frame: it completes a message, or it is a retransmission of one's
// first segment. When one segment completes several pipelined messages, fs
// describes the first and every request is queued for pairing.
func (t *tracker) track(seg segment, fs *core.FieldSet) bool {
	d := t.direction(seg.dirKey)
	tcp := seg.tcp

	if tcp.RST {
		d.resetMessage()
		return false
	}
	if tcp.SYN {
		d.nextSeq = tcp.Seq + 1
		d.seqKnown = true
		d.resetMessage()
		return false
	}
	if len(seg.payload) == 0 {
		return false
	}

	fs.TCPPayload = core.Some(seg.payload)
	if d.seqKnown && seqBefore(tcp.Seq, d.nextSeq) {
		fs.Retransmission = core.Some(true)
		return isHTTPStart(seg.payload)
	}
	d.nextSeq = tcp.Seq + uint32(len(seg.payload))
	d.seqKnown = true

	if !d.active {
		if !isHTTPStart(seg.payload) {
			return false
		}
		d.active = true
		d.buf = append(d.buf[:0], seg.payload...)
		d.segments = 1
	} else {
		d.buf = append(d.buf, seg.payload...)
		d.segments++
	}
	if len(d.buf) > maxMessageSize {
		t.logger.WithField("frame", fs.FrameNumber).Debug("http message too large, dropped")
		d.resetMessage()
		return false
	}

	ts := fs.TimeEpoch.Value
	delivered := false
	for {
		msg, ok, err := parseMessage(d.buf)
		if err != nil {
			t.logger.WithError(err).WithField("frame", fs.FrameNumber).Debug("unparsable http head")
			d.resetMessage()
			return delivered
		}
		if !ok {
			return delivered
		}

		var requestIn core.Field[uint64]
		if msg.isResponse {
			if req, ok := t.popRequest(seg.connKey, ts); ok {
				requestIn = core.Some(req)
			}
		} else {
			t.pushRequest(seg.connKey, fs.FrameNumber, ts)
		}
		if !delivered {
			fill(fs, d, msg, requestIn)
			delivered = true
		}

		// pipelined bytes start the next message
		rest := d.buf[msg.length:]
		if len(rest) == 0 || !isHTTPStart(rest) {
			d.resetMessage()
			return true
		}
		d.buf = append(d.buf[:0], rest...)
		d.segments = 1
	}
}

// fill copies a completed message into fs.
func fill(fs *core.FieldSet, d *direction, msg message, requestIn core.Field[uint64]) {
	if d.segments > 1 {
		fs.Reassembled = core.Some(append([]byte(nil), d.buf[:msg.length]...))
		fs.SegmentCount = core.Some(d.segments)
	}
	if len(msg.body) > 0 {
		fs.FileData = core.Some(append([]byte(nil), msg.body...))
	}
	if msg.isResponse {
		fs.ResponseCode = core.Some(msg.statusCode)
		fs.RequestIn = requestIn
	} else {
		fs.FullURI = core.Some(msg.fullURI)
	}
}

// pushRequest queues a request frame on its connection, dropping entries
// that are already older than the pairing window at ts.
func (t *tracker) pushRequest(conn string, frame uint64, ts time.Time) {
	frames := t.live(conn, ts)
	t.pending.Set(conn, append(frames, pendingRequest{frame: frame, ts: ts}), cache.NoExpiration)
}

// popRequest returns the oldest request on conn still inside the pairing
// window at ts. Windows are measured in capture time.
func (t *tracker) popRequest(conn string, ts time.Time) (uint64, bool) {
	frames := t.live(conn, ts)
	if len(frames) == 0 {
		t.pending.Delete(conn)
		return 0, false
	}
	if len(frames) == 1 {
		t.pending.Delete(conn)
	} else {
		t.pending.Set(conn, frames[1:], cache.NoExpiration)
	}
	return frames[0].frame, true
}

// live returns conn's queue without requests older than the pairing window.
func (t *tracker) live(conn string, ts time.Time) []pendingRequest {
	v, ok := t.pending.Get(conn)
	if !ok {
		return nil
	}
	frames := v.([]pendingRequest)
	cut := 0
	for cut < len(frames) && ts.Sub(frames[cut].ts) > t.pairTTL {
		t.logger.WithField("frame", frames[cut].frame).Debug("request expired unanswered")
		cut++
	}
	return frames[cut:]
}
