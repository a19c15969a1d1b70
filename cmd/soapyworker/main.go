// Command soapyworker owns one SoapySDR device on behalf of an orchestrator.
// It speaks the framed control/data protocol on stdin and stdout, so stdout
// must never carry anything else; logs go to stderr or a rotating file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rjboer/gosoapy/internal/ipc"
	"github.com/rjboer/gosoapy/internal/logging"
	"github.com/rjboer/gosoapy/internal/soapy"
	"github.com/rjboer/gosoapy/internal/worker"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := dieWithParent(); err != nil {
		log.Printf("parent death signal unavailable: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

type cliConfig struct {
	driver     string
	logLevel   string
	logFormat  string
	logFile    string
	logMaxSize int
	logBackups int
}

func parseConfig(args []string, lookup func(string) (string, bool)) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("soapyworker", flag.ContinueOnError)
	fs.StringVar(&cfg.driver, "driver", envString(lookup, "SOAPY_WORKER_DRIVER", "sim"), "Device driver (sim|native)")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "SOAPY_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "SOAPY_LOG_FORMAT", "text"), "Log format (text|json)")
	fs.StringVar(&cfg.logFile, "log-file", envString(lookup, "SOAPY_LOG_FILE", ""), "Rotating log file; stderr when empty")
	fs.IntVar(&cfg.logMaxSize, "log-max-size", envInt(lookup, "SOAPY_LOG_MAX_SIZE", 10), "Log file size in MB before rotation")
	fs.IntVar(&cfg.logBackups, "log-backups", envInt(lookup, "SOAPY_LOG_BACKUPS", 3), "Rotated log files to keep")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	if fs.NArg() > 0 {
		return cliConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg, nil
}

// logOutput returns the log destination; the closer is nil for stderr.
func logOutput(cfg cliConfig, stderr io.Writer) (io.Writer, io.Closer) {
	if cfg.logFile == "" {
		return stderr, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.logFile,
		MaxSize:    cfg.logMaxSize,
		MaxBackups: cfg.logBackups,
		Compress:   true,
	}
	return lj, lj
}

func run(ctx context.Context, cfg cliConfig, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	out, closer := logOutput(cfg, stderr)
	if closer != nil {
		defer closer.Close()
	}
	logger, err := logging.Parse(cfg.logLevel, cfg.logFormat, out)
	if err != nil {
		return err
	}
	logger = logger.With(logging.F("session", uuid.NewString()), logging.F("pid", os.Getpid()))
	logging.SetDefault(logger)

	drv, err := soapy.NewDriver(cfg.driver)
	if err != nil {
		return fmt.Errorf("select driver: %w", err)
	}

	conn := ipc.NewMux(stdin, stdout, nil)
	backend := soapy.NewBackend(drv, worker.StatusSink(conn.Control(), logger), logger)

	logger.Info("worker started", logging.F("driver", cfg.driver))
	err = worker.Serve(ctx, backend, conn, logger)
	if merr := conn.Err(); merr != nil && !errors.Is(merr, io.EOF) {
		logger.Warn("transport", logging.Err(merr))
	}
	logger.Info("worker stopped")
	return err
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
