package e2e

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Destination is the destination side of the E2E protocol: it accepts
// connections from source workers and routes decoded frames to the matching
// destination worker by the header's SendQNum — one source worker maps to
// one destination worker.
type Destination struct {
	listener net.Listener

	mu    sync.Mutex
	chans map[int32]chan Frame
	errCh chan error
}

// Listen opens addr and starts accepting source connections in the
// background; numWorkers pre-creates the per-worker routing channels.
func Listen(addr string, numWorkers int) (*Destination, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrap(err, "e2e: listen")
	}
	d := &Destination{
		listener: ln,
		chans:    make(map[int32]chan Frame, numWorkers),
		errCh:    make(chan error, numWorkers),
	}
	for i := 0; i < numWorkers; i++ {
		d.chans[int32(i)] = make(chan Frame, 4)
	}
	go d.acceptLoop()
	return d, nil
}

func (d *Destination) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go d.handleConn(conn)
	}
}

func (d *Destination) handleConn(conn net.Conn) {
	defer conn.Close()
	hdrBuf := make([]byte, HeaderSize)
	for {
		if _, err := io.ReadFull(conn, hdrBuf); err != nil {
			if err != io.EOF {
				nlog.Warningf("e2e: header read: %v", err)
			}
			return
		}
		h, err := Decode(hdrBuf)
		if err != nil {
			nlog.Errorf("e2e: decode header: %v", err)
			return
		}
		var payload []byte
		if h.Magic == MagicDataReady && h.Length > 0 {
			payload = make([]byte, h.Length)
			if _, err := io.ReadFull(conn, payload); err != nil {
				nlog.Warningf("e2e: payload read: %v", err)
				return
			}
		}
		d.dispatch(h, payload)
		if h.Magic == MagicEOF {
			return
		}
	}
}

func (d *Destination) dispatch(h Header, payload []byte) {
	d.mu.Lock()
	ch, ok := d.chans[h.SendQNum]
	d.mu.Unlock()
	if !ok {
		nlog.Warningf("e2e: frame for unknown worker %d dropped", h.SendQNum)
		return
	}
	ch <- Frame{Header: h, Payload: payload}
}

// Recv blocks until the next frame destined for workerIdx arrives, or ctx
// is canceled.
func (d *Destination) Recv(ctx context.Context, workerIdx int) (Frame, error) {
	d.mu.Lock()
	ch, ok := d.chans[int32(workerIdx)]
	d.mu.Unlock()
	if !ok {
		return Frame{}, xerrors.Wrap(errUnknownWorker, "e2e: recv")
	}
	select {
	case f := <-ch:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (d *Destination) Close() error { return d.listener.Close() }

var errUnknownWorker = errors.New("no channel registered for this worker index")
