// Command soapyctl drives a SoapySDR device through a worker: it lists and
// discovers devices, receives chunks with a live spectrum summary and
// transmits test tones.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	path := envString(os.LookupEnv, "SOAPY_CONFIG", defaultConfigPath())
	persistentCfg, err := loadOrCreateConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.LookupEnv, persistentCfg, path)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
