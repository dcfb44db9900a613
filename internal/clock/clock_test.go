// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedAlwaysReturnsSameInstant(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Fixed{At: at}
	assert.Equal(t, at, f.Now())
	assert.Equal(t, at, f.Now())
}

func TestISO8601FormatsInUTC(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2026-01-01T17:30:00Z", ISO8601(at))
}

func TestParseISO8601RoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	parsed, ok := ParseISO8601(ISO8601(at))
	assert.True(t, ok)
	assert.True(t, at.Equal(parsed))
}

func TestParseISO8601RejectsMalformed(t *testing.T) {
	_, ok := ParseISO8601("not-a-date")
	assert.False(t, ok)
}
