package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Frame tags on a Mux stream.
const (
	tagControl byte = 'C'
	tagData    byte = 'D'
)

// MaxFrame bounds a single frame; anything larger is treated as a corrupt
// stream rather than allocated.
const MaxFrame = 64 << 20

const muxQueue = 32

// Mux carries both logical channels over one byte stream, such as a worker's
// stdin/stdout or an SSH session. Each frame is a one-byte tag, a big-endian
// uint32 payload length and the payload: a JSON Message for control frames,
// raw samples for data frames.
type Mux struct {
	wmu sync.Mutex
	w   io.Writer
	c   io.Closer

	ctrl chan Message
	data chan []byte

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// NewMux starts demultiplexing r. Writes go to w; Close closes c, which may
// be nil.
func NewMux(r io.Reader, w io.Writer, c io.Closer) *Mux {
	m := &Mux{
		w:    w,
		c:    c,
		ctrl: make(chan Message, muxQueue),
		data: make(chan []byte, muxQueue),
	}
	go m.readLoop(bufio.NewReaderSize(r, 1<<16))
	return m
}

func (m *Mux) Control() Control { return muxControl{m} }
func (m *Mux) Data() Data       { return muxData{m} }

// Close closes the underlying stream.
func (m *Mux) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.c != nil {
			err = m.c.Close()
		}
	})
	return err
}

// Err returns the error that stopped the read loop, if any.
func (m *Mux) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

func (m *Mux) readLoop(r *bufio.Reader) {
	defer close(m.ctrl)
	defer close(m.data)

	var hdr [5]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			m.stop(err)
			return
		}
		n := binary.BigEndian.Uint32(hdr[1:])
		if n > MaxFrame {
			m.stop(fmt.Errorf("ipc: frame of %d bytes exceeds limit", n))
			return
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			m.stop(err)
			return
		}

		switch hdr[0] {
		case tagControl:
			var msg Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				m.stop(fmt.Errorf("ipc: decode control frame: %w", err))
				return
			}
			m.ctrl <- msg
		case tagData:
			m.data <- payload
		default:
			m.stop(fmt.Errorf("ipc: unknown frame tag %q", hdr[0]))
			return
		}
	}
}

func (m *Mux) stop(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	m.errMu.Lock()
	m.err = err
	m.errMu.Unlock()
}

func (m *Mux) writeFrame(tag byte, payload []byte) error {
	if len(payload) > MaxFrame {
		return fmt.Errorf("ipc: frame of %d bytes exceeds limit", len(payload))
	}
	var hdr [5]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))

	m.wmu.Lock()
	defer m.wmu.Unlock()
	if _, err := m.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := m.w.Write(payload)
	return err
}

// recvErr is what Recv reports once the read loop has ended.
func (m *Mux) recvErr() error {
	if err := m.Err(); err != nil {
		return err
	}
	return io.EOF
}

type muxControl struct{ m *Mux }

func (c muxControl) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: encode control frame: %w", err)
	}
	return c.m.writeFrame(tagControl, payload)
}

func (c muxControl) Recv() (Message, error) {
	msg, ok := <-c.m.ctrl
	if !ok {
		return Message{}, c.m.recvErr()
	}
	return msg, nil
}

type muxData struct{ m *Mux }

func (d muxData) Send(frame []byte) error { return d.m.writeFrame(tagData, frame) }

func (d muxData) Recv() ([]byte, error) {
	frame, ok := <-d.m.data
	if !ok {
		return nil, d.m.recvErr()
	}
	return frame, nil
}
