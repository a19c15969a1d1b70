package main

import (
	"context"
	"fmt"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/ipc"
	"github.com/rjboer/gosoapy/internal/logging"
	"github.com/rjboer/gosoapy/internal/soapy"
	"github.com/rjboer/gosoapy/internal/worker"
)

// connect reaches a worker over the configured transport:
//
//	inproc  backend in this process, over an ipc.Pipe
//	local   soapyworker child process over stdio
//	ssh     soapyworker on cfg.SSHHost over an SSH session
func connect(ctx context.Context, cfg persistentConfig, sshPassword string, log logging.Logger) (ipc.Conn, error) {
	log = logging.Or(log)
	switch cfg.Transport {
	case "inproc", "":
		drv, err := soapy.NewDriver(cfg.Driver)
		if err != nil {
			return nil, err
		}
		workerSide, clientSide := ipc.Pipe()
		b := soapy.NewBackend(drv, worker.StatusSink(workerSide.Control(), log), log)
		go func() {
			defer workerSide.Close()
			if err := worker.Serve(ctx, b, workerSide, log); err != nil {
				log.Warn("in-process worker stopped", logging.Err(err))
			}
		}()
		return clientSide, nil
	case "local":
		return worker.Spawn(ctx, cfg.WorkerPath, "-driver", cfg.Driver, "-log-level", cfg.LogLevel)
	case "ssh":
		return worker.DialSSH(ctx, worker.SSHConfig{
			Host:     cfg.SSHHost,
			User:     cfg.SSHUser,
			Password: sshPassword,
			KeyPath:  cfg.SSHKeyPath,
			Port:     cfg.SSHPort,
			Command:  cfg.WorkerPath,
			Args:     []string{"-driver", cfg.Driver, "-log-level", cfg.LogLevel},
		})
	}
	return nil, fmt.Errorf("unknown transport %q (want inproc, local or ssh)", cfg.Transport)
}

// session is one opened and configured device.
type session struct {
	client   *worker.Client
	settings *soapy.Settings
	chunk    int
}

// openSession connects, opens the configured device with retries and
// configures it for the given direction. Status lines go to status.
func openSession(ctx context.Context, cfg persistentConfig, sshPassword string, tx bool, status device.Reporter, log logging.Logger) (*session, error) {
	conn, err := connect(ctx, cfg, sshPassword, log)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	client := worker.NewClient(conn, status.Report, log)
	s := &session{client: client, settings: cfg.settings()}

	retries := uint64(max(cfg.OpenRetries, 0))
	if err := client.OpenWithRetry(ctx, cfg.Identifier, retries); err != nil {
		client.Close()
		return nil, fmt.Errorf("open: %w", err)
	}
	chunk, err := client.Configure(tx, s.settings.DeviceParameters())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("configure: %w", err)
	}
	s.chunk = chunk
	s.settings.Attach(client)
	return s, nil
}

func (s *session) Close() error {
	s.settings.Attach(nil)
	return s.client.Close()
}
