package ipc

import (
	"io"
	"sync"
)

// pipeDepth bounds how far one side may run ahead of the other.
const pipeDepth = 64

type pipeQueues struct {
	ctrl chan Message
	data chan []byte
}

type pipeEnd struct {
	in, out pipeQueues

	mu     sync.Mutex
	closed bool
}

// Pipe returns two connected in-process endpoints. It stands in for the
// process boundary in tests and when a backend runs in the caller's process.
func Pipe() (Conn, Conn) {
	ab := pipeQueues{ctrl: make(chan Message, pipeDepth), data: make(chan []byte, pipeDepth)}
	ba := pipeQueues{ctrl: make(chan Message, pipeDepth), data: make(chan []byte, pipeDepth)}
	return &pipeEnd{in: ba, out: ab}, &pipeEnd{in: ab, out: ba}
}

func (p *pipeEnd) Control() Control { return pipeControl{p} }
func (p *pipeEnd) Data() Data       { return pipeData{p} }

// Close ends this side's outgoing traffic; the peer drains what was queued
// and then sees io.EOF.
func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out.ctrl)
		close(p.out.data)
	}
	return nil
}

type pipeControl struct{ p *pipeEnd }

func (c pipeControl) Send(m Message) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.p.closed {
		return ErrClosed
	}
	c.p.out.ctrl <- m
	return nil
}

func (c pipeControl) Recv() (Message, error) {
	m, ok := <-c.p.in.ctrl
	if !ok {
		return Message{}, io.EOF
	}
	return m, nil
}

type pipeData struct{ p *pipeEnd }

func (d pipeData) Send(frame []byte) error {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if d.p.closed {
		return ErrClosed
	}
	d.p.out.data <- frame
	return nil
}

func (d pipeData) Recv() ([]byte, error) {
	f, ok := <-d.p.in.data
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}
