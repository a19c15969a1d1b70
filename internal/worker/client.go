package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/iq"
	"github.com/rjboer/gosoapy/internal/ipc"
	"github.com/rjboer/gosoapy/internal/logging"
)

// StatusHandler receives the worker's status lines in order.
type StatusHandler func(text string)

// Client is the orchestrator's proxy for one worker. Calls are serialized;
// status lines that arrive while waiting for a reply go to the handler.
type Client struct {
	conn     ipc.Conn
	onStatus StatusHandler
	log      logging.Logger

	mu sync.Mutex
}

// NewClient wraps conn. onStatus may be nil.
func NewClient(conn ipc.Conn, onStatus StatusHandler, log logging.Logger) *Client {
	return &Client{
		conn:     conn,
		onStatus: onStatus,
		log:      logging.Or(log).With(logging.F("component", "worker-client")),
	}
}

// call sends req and waits for its reply. Transport failures are returned
// as is; a failed reply becomes an *ipc.RemoteError.
func (c *Client) call(req ipc.Message) (ipc.Message, error) {
	if err := c.conn.Control().Send(req); err != nil {
		return ipc.Message{}, fmt.Errorf("send %s: %w", req.Op, err)
	}
	return c.await(req.Op)
}

func (c *Client) await(op ipc.Op) (ipc.Message, error) {
	for {
		m, err := c.conn.Control().Recv()
		if err != nil {
			return ipc.Message{}, fmt.Errorf("await %s reply: %w", op, err)
		}
		switch m.Kind {
		case ipc.KindStatus:
			c.log.Debug("worker status", logging.F("text", m.Text))
			if c.onStatus != nil {
				c.onStatus(m.Text)
			}
		case ipc.KindReply:
			if m.Op != op {
				return m, fmt.Errorf("reply for %s while waiting for %s", m.Op, op)
			}
			return m, m.Err()
		default:
			c.log.Warn("unexpected message from worker", logging.F("kind", string(m.Kind)))
		}
	}
}

// ListDevices returns the kwargs strings of every device the worker sees.
func (c *Client) ListDevices() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.call(ipc.Request(ipc.OpList))
	return reply.Devices, err
}

// AdaptChunkSize recomputes the worker's receive chunk for rate and returns it.
func (c *Client) AdaptChunkSize(rate float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ipc.Request(ipc.OpAdapt)
	req.SampleRate = rate
	reply, err := c.call(req)
	return reply.ChunkSize, err
}

func (c *Client) Open(identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ipc.Request(ipc.OpOpen)
	req.Identifier = identifier
	_, err := c.call(req)
	return err
}

// OpenWithRetry retries Open with exponential back-off while the worker
// reports a failure, up to attempts retries. Transport errors end it early.
func (c *Client) OpenWithRetry(ctx context.Context, identifier string, attempts uint64) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, attempts), ctx)

	op := func() error {
		err := c.Open(identifier)
		var remote *ipc.RemoteError
		if err != nil && !errors.As(err, &remote) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("open failed, retrying", logging.F("identifier", identifier),
			logging.F("wait", wait.String()), logging.Err(err))
	}
	return backoff.RetryNotify(op, policy, notify)
}

// Configure applies params for the given direction and returns the receive
// chunk size the worker settled on.
func (c *Client) Configure(tx bool, params device.Parameters) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ipc.Request(ipc.OpConfigure)
	req.TX = tx
	req.Params = params
	reply, err := c.call(req)
	return reply.ChunkSize, err
}

// PrepareReceive starts the RX stream and returns the chunk size in samples.
func (c *Client) PrepareReceive() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.call(ipc.Request(ipc.OpPrepareRX))
	return reply.ChunkSize, err
}

func (c *Client) PrepareSend(continuous bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ipc.Request(ipc.OpPrepareTX)
	req.Continuous = continuous
	_, err := c.call(req)
	return err
}

// ReceiveRaw pulls one chunk of CF32 bytes.
func (c *Client) ReceiveRaw() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.call(ipc.Request(ipc.OpRecv)); err != nil {
		return nil, err
	}
	frame, err := c.conn.Data().Recv()
	if err != nil {
		return nil, fmt.Errorf("receive frame: %w", err)
	}
	return frame, nil
}

// Receive pulls one chunk and decodes it.
func (c *Client) Receive() ([]complex64, error) {
	frame, err := c.ReceiveRaw()
	if err != nil {
		return nil, err
	}
	return iq.BytesToIQ(frame)
}

// Send transmits one batch of samples.
func (c *Client) Send(samples []complex64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Data().Send(iq.IQToBytes(samples)); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	_, err := c.call(ipc.Request(ipc.OpSend))
	return err
}

// SendCommand changes one parameter on the running worker. It makes Client a
// device.Commander for soapy.Settings.
func (c *Client) SendCommand(key device.Command, v device.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ipc.Request(ipc.OpCommand)
	req.Param = &device.Param{Key: key, Value: v}
	_, err := c.call(req)
	return err
}

// Close asks the worker to release the device and then closes the
// connection. The connection is closed even if the request fails.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.call(ipc.Request(ipc.OpClose))
	return errors.Join(err, c.conn.Close())
}
