// Package ipc carries the two logical channels between an orchestrator and
// its worker process: an ordered control channel of Messages and a data
// channel of raw sample frames.
package ipc

import (
	"errors"
	"fmt"

	"github.com/rjboer/gosoapy/internal/device"
)

// Kind discriminates Messages.
type Kind string

const (
	KindStatus  Kind = "status"
	KindRequest Kind = "request"
	KindReply   Kind = "reply"
)

// Op names a worker operation. Each request carries one and its reply echoes it.
type Op string

const (
	OpList      Op = "list"
	OpAdapt     Op = "adapt"
	OpOpen      Op = "open"
	OpConfigure Op = "configure"
	OpPrepareRX Op = "prepare_rx"
	OpPrepareTX Op = "prepare_tx"
	OpRecv      Op = "recv"
	OpSend      Op = "send"
	OpCommand   Op = "command"
	OpClose     Op = "close"
)

// Message is one control-channel unit. Status messages only use Text;
// requests and replies use the remaining fields depending on Op.
type Message struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text,omitempty"`
	Op   Op     `json:"op,omitempty"`

	Identifier string            `json:"identifier,omitempty"`
	TX         bool              `json:"tx,omitempty"`
	Continuous bool              `json:"continuous,omitempty"`
	SampleRate float64           `json:"sample_rate,omitempty"`
	Params     device.Parameters `json:"params,omitempty"`
	Param      *device.Param     `json:"param,omitempty"`

	OK        bool     `json:"ok,omitempty"`
	Code      int      `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
	Devices   []string `json:"devices,omitempty"`
	ChunkSize int      `json:"chunk_size,omitempty"`
}

// Status builds a free-form status message.
func Status(text string) Message { return Message{Kind: KindStatus, Text: text} }

// Request builds an empty request for op.
func Request(op Op) Message { return Message{Kind: KindRequest, Op: op} }

// ReplyTo builds the reply for req from the outcome err.
func ReplyTo(req Message, err error) Message {
	m := Message{Kind: KindReply, Op: req.Op, OK: err == nil, Code: device.ErrorCode(err)}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// Err turns a failed reply back into an error.
func (m Message) Err() error {
	if m.Kind != KindReply || m.OK {
		return nil
	}
	return &RemoteError{Op: m.Op, Ret: m.Code, Msg: m.Error}
}

// RemoteError is a failure reported by the worker. Ret is the native return
// code, or -1 when the failure had none.
type RemoteError struct {
	Op  Op
	Ret int
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed (code %d): %s", e.Op, e.Ret, e.Msg)
}

// Code implements device.Coder.
func (e *RemoteError) Code() int { return e.Ret }

// Control is the ordered message channel.
type Control interface {
	Send(Message) error
	Recv() (Message, error)
}

// Data is the sample frame channel. Send takes ownership of the frame.
type Data interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
}

// Conn is one endpoint of a control/data channel pair.
type Conn interface {
	Control() Control
	Data() Data
	Close() error
}

// ErrClosed is returned by Send after the endpoint was closed.
var ErrClosed = errors.New("ipc: endpoint closed")
