package e2e

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Frame is a fully decoded wire message: its header plus payload (nil for
// EOF frames).
type Frame struct {
	Header  Header
	Payload []byte
}

// SourceWorker is one source-side worker's dedicated connection. Workers
// never share a connection's write path concurrently — frames from
// different workers must never interleave on the same connection — so each
// SourceWorker owns its own net.Conn and sequence counter.
type SourceWorker struct {
	mu   sync.Mutex
	conn net.Conn
	seq  int64
}

// DialSource opens one TCP connection per endpoint, one per worker index.
func DialSource(ctx context.Context, endpoints []Endpoint, dialTimeout time.Duration) ([]*SourceWorker, error) {
	workers := make([]*SourceWorker, len(endpoints))
	var d net.Dialer
	d.Timeout = dialTimeout
	for i, ep := range endpoints {
		conn, err := d.DialContext(ctx, "tcp", ep.String())
		if err != nil {
			for _, w := range workers[:i] {
				if w != nil {
					w.conn.Close()
				}
			}
			return nil, xerrors.Wrap(err, "e2e: dial source endpoint "+ep.String())
		}
		workers[i] = &SourceWorker{conn: conn}
	}
	return workers, nil
}

// Send transmits header+payload as a single logical write. sendTimeNs is
// stamped by the caller (the worker, via the clock package) so e2e stays
// free of a clock dependency.
func (w *SourceWorker) Send(sendQNum int32, location, length, sendTimeNs int64, payload []byte) error {
	h := Header{
		Magic:      MagicDataReady,
		SendQNum:   sendQNum,
		Sequence:   w.nextSeq(),
		SendTimeNs: sendTimeNs,
		Location:   location,
		Length:     length,
	}
	return w.writeFrame(h, payload)
}

// SendEOF transmits the EOF/"quit" frame that ends this worker's stream.
func (w *SourceWorker) SendEOF(sendQNum int32, sendTimeNs int64) error {
	h := Header{Magic: MagicEOF, SendQNum: sendQNum, Sequence: w.nextSeq(), SendTimeNs: sendTimeNs}
	return w.writeFrame(h, nil)
}

// nextSeq returns sequence numbers starting at 0, so the first frame on a
// connection carries Sequence 0 and the destination's TOT sees the expected
// {0..N-1} range.
func (w *SourceWorker) nextSeq() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.seq
	w.seq++
	return seq
}

func (w *SourceWorker) writeFrame(h Header, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, Encode(h)...)
	buf = append(buf, payload...)
	if _, err := w.conn.Write(buf); err != nil {
		return xerrors.Wrap(err, "e2e: source send")
	}
	return nil
}

func (w *SourceWorker) Close() error { return w.conn.Close() }

// CloseAll closes every source worker connection, logging (not failing on)
// individual close errors since this runs during teardown.
func CloseAll(workers []*SourceWorker) {
	for _, w := range workers {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			nlog.Warningf("e2e: close source connection: %v", err)
		}
	}
}
