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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
)

func TestAcquireFailsWhileHeld(t *testing.T) {
	root := t.TempDir()
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	lock, err := Acquire(root, "holder-a", clk)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(root, "holder-b", clk)
	assert.Error(t, err)
}

func TestAcquireReclaimsExpiredLock(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	lock, err := Acquire(root, "holder-a", clock.Fixed{At: start})
	require.NoError(t, err)
	_ = lock

	later := clock.Fixed{At: start.Add(LockTTL + time.Minute)}
	lock2, err := Acquire(root, "holder-b", later)
	require.NoError(t, err)
	defer lock2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	lock, err := Acquire(root, "holder-a", nil)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestRefreshRewritesLockFileWithoutError(t *testing.T) {
	root := t.TempDir()
	lock, err := Acquire(root, "holder-a", clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	defer lock.Release()

	require.NoError(t, lock.Refresh())
}
