package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rjboer/gosoapy/internal/ipc"
)

// DefaultBinary is the worker executable looked up on PATH.
const DefaultBinary = "soapyworker"

// Spawn starts a local worker process and speaks to it over its stdin and
// stdout. The worker's stderr is inherited. Closing the returned Conn closes
// stdin, which ends the worker's serve loop, and waits for the process.
func Spawn(ctx context.Context, path string, args ...string) (ipc.Conn, error) {
	if path == "" {
		path = DefaultBinary
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", path, err)
	}
	return ipc.NewMux(stdout, stdin, &process{stdin: stdin, cmd: cmd}), nil
}

type process struct {
	stdin io.Closer
	cmd   *exec.Cmd
}

func (p *process) Close() error {
	err := p.stdin.Close()
	return errors.Join(err, p.cmd.Wait())
}
