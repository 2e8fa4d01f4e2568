// Copyright (c) 2025 [LibrarEase]
//
// This software is licensed under the PolyForm Noncommercial License 1.0.0
// See LICENSE file in the project root for full license terms.
//
// For commercial licensing inquiries, contact: solidifyarmor@gmail.com
// https://github.com/librarease/librarease

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/librarease/catalog/internal/queue"
	"github.com/librarease/catalog/internal/telemetry"
)

// process is either the asset cleanup worker or the sweep scheduler.
type process interface {
	Start() error
	Stop()
}

func main() {
	mode := flag.String("mode", "worker", "worker: process asset cleanup tasks, scheduler: enqueue periodic sweeps")
	flag.Parse()

	logger := telemetry.NewLogger(os.Stdout).With(slog.String("mode", *mode))
	slog.SetDefault(logger)

	var (
		p   process
		err error
	)
	switch *mode {
	case "worker":
		p, err = queue.NewWorker(logger)
	case "scheduler":
		p, err = queue.NewScheduler(logger)
	default:
		logger.Error("unknown mode, expected worker or scheduler")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("startup failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// asynq starts its own goroutines and returns
	if err := p.Start(); err != nil {
		logger.Error("start failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logger.Info("started")

	<-ctx.Done()

	p.Stop()
	logger.Info("exited")
}
