package ipc

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/rjboer/gosoapy/internal/device"
)

func exercise(t *testing.T, a, b Conn) {
	t.Helper()

	req := Request(OpConfigure)
	req.TX = true
	req.Params, _ = device.NewParameters(device.Param{Key: device.SetFrequency, Value: device.FloatValue(100e6)})

	if err := a.Control().Send(req); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := a.Data().Send([]byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("send data: %v", err)
	}

	got, err := b.Control().Recv()
	if err != nil {
		t.Fatalf("recv request: %v", err)
	}
	if got.Op != OpConfigure || !got.TX || len(got.Params) != 1 {
		t.Fatalf("unexpected request %#v", got)
	}
	frame, err := b.Data().Recv()
	if err != nil {
		t.Fatalf("recv data: %v", err)
	}
	if !bytes.Equal(frame, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("unexpected frame %v", frame)
	}

	for _, text := range []string{"first", "second"} {
		if err := b.Control().Send(Status(text)); err != nil {
			t.Fatalf("send status: %v", err)
		}
	}
	if err := b.Control().Send(ReplyTo(got, nil)); err != nil {
		t.Fatalf("send reply: %v", err)
	}
	for _, want := range []string{"first", "second"} {
		m, err := a.Control().Recv()
		if err != nil || m.Kind != KindStatus || m.Text != want {
			t.Fatalf("expected status %q, got %#v (%v)", want, m, err)
		}
	}
	reply, err := a.Control().Recv()
	if err != nil || reply.Kind != KindReply || !reply.OK || reply.Err() != nil {
		t.Fatalf("unexpected reply %#v (%v)", reply, err)
	}
}

func TestPipeOrdering(t *testing.T) {
	a, b := Pipe()
	exercise(t, a, b)

	a.Close()
	if err := a.Control().Send(Status("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := b.Control().Recv(); err != io.EOF {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}

func TestMuxOverStream(t *testing.T) {
	left, right := net.Pipe()
	a := NewMux(left, left, left)
	b := NewMux(right, right, right)
	defer b.Close()

	exercise(t, a, b)

	a.Close()
	if _, err := b.Data().Recv(); err != io.EOF {
		t.Fatalf("expected EOF after peer close, got %v", err)
	}
}

func TestMuxRejectsUnknownTag(t *testing.T) {
	m := NewMux(bytes.NewReader([]byte{'X', 0, 0, 0, 0}), io.Discard, nil)
	if _, err := m.Control().Recv(); err == nil || err == io.EOF {
		t.Fatalf("expected framing error, got %v", err)
	}
}

func TestFailedReplyCarriesCode(t *testing.T) {
	reply := ReplyTo(Request(OpOpen), &RemoteError{Op: OpOpen, Ret: -2, Msg: "no match"})
	err := reply.Err()
	if err == nil {
		t.Fatalf("expected error")
	}
	if device.ErrorCode(err) != -2 {
		t.Fatalf("expected code -2, got %d", device.ErrorCode(err))
	}
}
