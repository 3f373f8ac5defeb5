package e2e

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Magic: MagicDataReady, SendQNum: 3, Sequence: 42, SendTimeNs: 123456789, Location: 4096, Length: 8192}
	buf := Encode(h)
	if len(buf) != HeaderSize {
		t.Fatalf("expected %d-byte header, got %d", HeaderSize, len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := Encode(Header{Magic: 0xDEAD, Sequence: 1})
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected decode error for unrecognized magic")
	}
}

func TestAddressTableDistributesRoundRobinAcrossHosts(t *testing.T) {
	hosts := []HostSpec{{Host: "a", BasePort: 9000, PortCount: 2}, {Host: "b", BasePort: 9100, PortCount: 2}}
	eps := AddressTable(hosts, 4)
	if len(eps) != 4 {
		t.Fatalf("expected 4 endpoints, got %d", len(eps))
	}
	if eps[0].Host != "a" || eps[1].Host != "b" || eps[2].Host != "a" || eps[3].Host != "b" {
		t.Fatalf("expected alternating hosts, got %+v", eps)
	}
}

func TestSourceToDestinationDataAndEOF(t *testing.T) {
	dest, err := Listen("127.0.0.1:0", 1)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer dest.Close()

	addr := dest.listener.Addr().String()
	host, port := splitHostPort(t, addr)

	ctx := context.Background()
	workers, err := DialSource(ctx, []Endpoint{{Host: host, Port: port}}, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer CloseAll(workers)

	payload := bytes.Repeat([]byte{0x42}, 4096)
	if err := workers[0].Send(0, 0, int64(len(payload)), 1000, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	frame, err := dest.Recv(recvCtx, 0)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if frame.Header.Magic != MagicDataReady || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("unexpected frame: header=%+v payload_len=%d", frame.Header, len(frame.Payload))
	}

	if err := workers[0].SendEOF(0, 2000); err != nil {
		t.Fatalf("send eof: %v", err)
	}
	recvCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	eofFrame, err := dest.Recv(recvCtx2, 0)
	if err != nil {
		t.Fatalf("recv eof: %v", err)
	}
	if eofFrame.Header.Magic != MagicEOF {
		t.Fatalf("expected EOF frame, got %+v", eofFrame.Header)
	}
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("parse listener addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return host, port
}
