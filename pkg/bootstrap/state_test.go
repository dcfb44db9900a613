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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDoneAdvancesCursorMonotonically(t *testing.T) {
	st := NewState(3)
	st.MarkDone(1, true)
	assert.Equal(t, 0, st.Cursor)
	st.MarkDone(0, true)
	assert.Equal(t, 2, st.Cursor)
	st.MarkDone(2, false)
	assert.Equal(t, 3, st.Cursor)
	assert.True(t, st.Completed)
	assert.Equal(t, 2, st.OK)
	assert.Equal(t, 1, st.Fail)
}

func TestStateJSONRoundTripsDoneSet(t *testing.T) {
	st := NewState(5)
	st.MarkDone(0, true)
	st.MarkDone(3, true)

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var restored State
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, restored.Done[0])
	assert.True(t, restored.Done[3])
	assert.False(t, restored.Done[1])
}

func TestStateStoreLoadAbsentReturnsFreshState(t *testing.T) {
	store := NewStateStore(t.TempDir())
	st, err := store.Load(10)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Total)
	assert.Empty(t, st.Done)
}

func TestStateStoreFlushAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStateStore(root)
	st := NewState(4)
	st.MarkDone(0, true)
	st.MarkDone(1, false)

	require.NoError(t, store.Flush(st))

	loaded, err := store.Load(4)
	require.NoError(t, err)
	assert.Equal(t, st.OK, loaded.OK)
	assert.Equal(t, st.Fail, loaded.Fail)
	assert.True(t, loaded.Done[0])
}

func TestHasCompletedReflectsSentinel(t *testing.T) {
	root := t.TempDir()
	assert.False(t, HasCompleted(root, false))

	st := NewState(1)
	st.MarkDone(0, true)
	require.NoError(t, WriteCompletionSentinel(root, st))
	assert.True(t, HasCompleted(root, false))
	assert.False(t, HasCompleted(root, true))
}
