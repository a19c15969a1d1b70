// Package worker runs a soapy.Backend behind an ipc.Conn and gives the
// orchestrator a typed client for it. The two sides can share a process
// (ipc.Pipe), talk over a child's stdio, or over an SSH session.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/ipc"
	"github.com/rjboer/gosoapy/internal/logging"
	"github.com/rjboer/gosoapy/internal/soapy"
)

// ErrUnknownOp is replied for a request the worker does not implement.
var ErrUnknownOp = errors.New("unknown operation")

// StatusSink forwards backend status lines to the orchestrator as status
// messages. Send failures are logged; the backend never sees them.
func StatusSink(ctrl ipc.Control, log logging.Logger) device.Reporter {
	log = logging.Or(log)
	return device.ReporterFunc(func(text string) {
		if err := ctrl.Send(ipc.Status(text)); err != nil {
			log.Debug("status dropped", logging.F("text", text), logging.Err(err))
		}
	})
}

// Serve answers requests from conn until a close request, the end of the
// control stream or the cancellation of ctx. The backend is closed on every
// exit path. A clean shutdown returns nil.
func Serve(ctx context.Context, b *soapy.Backend, conn ipc.Conn, log logging.Logger) error {
	log = logging.Or(log)
	defer b.Close()

	type incoming struct {
		msg ipc.Message
		err error
	}
	reqs := make(chan incoming)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			m, err := conn.Control().Recv()
			select {
			case reqs <- incoming{m, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var in incoming
		select {
		case <-ctx.Done():
			log.Info("worker cancelled")
			return ctx.Err()
		case in = <-reqs:
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				log.Info("control stream ended")
				return nil
			}
			return fmt.Errorf("receive request: %w", in.err)
		}
		if in.msg.Kind != ipc.KindRequest {
			log.Warn("ignoring non-request message", logging.F("kind", string(in.msg.Kind)))
			continue
		}

		reply := handle(b, conn, in.msg)
		if !reply.OK {
			log.Debug("request failed", logging.F("op", string(in.msg.Op)), logging.F("error", reply.Error))
		}
		if err := conn.Control().Send(reply); err != nil {
			return fmt.Errorf("send %s reply: %w", in.msg.Op, err)
		}
		if in.msg.Op == ipc.OpClose {
			return nil
		}
	}
}

func handle(b *soapy.Backend, conn ipc.Conn, req ipc.Message) ipc.Message {
	switch req.Op {
	case ipc.OpList:
		devices, err := b.ListDevices()
		reply := ipc.ReplyTo(req, err)
		reply.Devices = devices
		return reply

	case ipc.OpAdapt:
		b.AdaptChunkSize(req.SampleRate)
		reply := ipc.ReplyTo(req, nil)
		reply.ChunkSize = b.ChunkSize()
		return reply

	case ipc.OpOpen:
		return ipc.ReplyTo(req, b.Open(req.Identifier))

	case ipc.OpConfigure:
		reply := ipc.ReplyTo(req, b.Configure(req.TX, req.Params))
		reply.ChunkSize = b.ChunkSize()
		return reply

	case ipc.OpPrepareRX:
		reply := ipc.ReplyTo(req, b.PrepareReceive())
		reply.ChunkSize = b.ChunkSize()
		return reply

	case ipc.OpPrepareTX:
		return ipc.ReplyTo(req, b.PrepareSend(req.Continuous))

	case ipc.OpRecv:
		// The frame goes out on the data channel before the reply; the
		// client only reads it after a successful reply.
		return ipc.ReplyTo(req, b.Receive(conn.Data()))

	case ipc.OpSend:
		// The client queues the frame before the request.
		frame, err := conn.Data().Recv()
		if err != nil {
			return ipc.ReplyTo(req, fmt.Errorf("receive frame: %w", err))
		}
		return ipc.ReplyTo(req, b.Send(frame))

	case ipc.OpCommand:
		if req.Param == nil {
			return ipc.ReplyTo(req, errors.New("command without parameter"))
		}
		return ipc.ReplyTo(req, b.Apply(req.Param.Key, req.Param.Value))

	case ipc.OpClose:
		b.Close()
		return ipc.ReplyTo(req, nil)
	}
	return ipc.ReplyTo(req, fmt.Errorf("%w %q", ErrUnknownOp, req.Op))
}
