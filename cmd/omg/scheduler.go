// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/openclaw/omg/pkg/host"
)

// inProcessScheduler adapts robfig/cron/v3 to host.CronScheduler for the
// standalone `omg serve` command. A production host embedding OMG instead
// wires its own scheduler against the same interface.
type inProcessScheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	handlers map[string]host.CronHandler
	entries  map[string]cron.EntryID
}

func newInProcessScheduler(logger *slog.Logger) *inProcessScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &inProcessScheduler{
		logger:   logger,
		cron:     cron.New(),
		handlers: map[string]host.CronHandler{},
		entries:  map[string]cron.EntryID{},
	}
}

// Schedule implements host.CronScheduler. Re-registering an id replaces the
// prior entry, matching the host.CronScheduler contract.
func (s *inProcessScheduler) Schedule(id string, cronExpression string, handler host.CronHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
	}
	s.handlers[id] = handler

	entryID, err := s.cron.AddFunc(cronExpression, func() {
		s.fire(id, context.Background())
	})
	if err != nil {
		s.logger.Warn("scheduler.schedule-failed", "job", id, "expr", cronExpression, "error", err)
		return
	}
	s.entries[id] = entryID
}

// fire invokes the named job's handler directly, used both by the cron
// loop and by the filesystem watcher's debounced trigger.
func (s *inProcessScheduler) fire(id string, ctx context.Context) {
	s.mu.Lock()
	handler, ok := s.handlers[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	handler(ctx)
}

func (s *inProcessScheduler) start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}
