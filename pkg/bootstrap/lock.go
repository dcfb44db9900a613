// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
)

// LockTTL is how long a lock is honored before it is considered
// abandoned by a crashed holder (spec.md §4.11, §8).
const LockTTL = 10 * time.Minute

type lockFile struct {
	Holder    string `json:"holder"`
	AcquiredAt string `json:"acquiredAt"`
	RefreshedAt string `json:"refreshedAt"`
}

// Lock is an exclusive, TTL-refreshed filesystem lock over a workspace's
// bootstrap run. Unlike a registry mutex, this lock crosses process
// boundaries: two `omg bootstrap` invocations against the same graph root
// must not interleave (spec.md §4.11).
type Lock struct {
	path     string
	holder   string
	clk      clock.Clock
	acquired time.Time
}

func lockPath(root string) string {
	return filepath.Join(root, ".bootstrap-lock")
}

// Acquire takes the lock, failing if a live (non-expired) lock is already
// held by another process. A lock older than LockTTL is treated as
// abandoned and silently reclaimed (fail-open, spec.md §8).
func Acquire(root, holder string, clk clock.Clock) (*Lock, error) {
	if clk == nil {
		clk = clock.System{}
	}
	path := lockPath(root)
	content, ok, err := frontmatter.ReadIfExists(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read lock: %w", err)
	}
	if ok {
		var existing lockFile
		if err := json.Unmarshal(content, &existing); err == nil {
			refreshed, parsed := clock.ParseISO8601(existing.RefreshedAt)
			if parsed && clk.Now().Sub(refreshed) < LockTTL {
				return nil, fmt.Errorf("bootstrap: workspace locked by %q since %s", existing.Holder, existing.AcquiredAt)
			}
		}
	}

	l := &Lock{path: path, holder: holder, clk: clk, acquired: clk.Now()}
	if err := l.write(l.acquired); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lock) write(acquired time.Time) error {
	now := clock.ISO8601(l.clk.Now())
	lf := lockFile{Holder: l.holder, AcquiredAt: clock.ISO8601(acquired), RefreshedAt: now}
	content, err := json.Marshal(lf)
	if err != nil {
		return fmt.Errorf("bootstrap: marshal lock: %w", err)
	}
	return frontmatter.AtomicWrite(l.path, content, 0o640)
}

// Refresh bumps refreshedAt so a long-running bootstrap isn't mistaken for
// abandoned by a concurrent process inspecting the lock file.
func (l *Lock) Refresh() error {
	return l.write(l.acquired)
}

// Release removes the lock file. Missing file is not an error (idempotent
// release after a prior crash-cleanup).
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bootstrap: release lock: %w", err)
	}
	return nil
}
