package audio

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_WriteThenCloseProducesFile(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 3, 16000, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, rec.Disabled())

	rec.Write([]Sample{1, -1, 2, -2})
	require.NoError(t, rec.Close())

	info, err := os.Stat(rec.Path())
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, rec.Path(), "channel_3_20260102_030405.wav")
}

func TestRecorder_WriteAfterDiskErrorDisablesButDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 0, 16000, time.Now())
	require.NoError(t, err)

	require.NoError(t, rec.file.Close()) // simulate the underlying file going away
	assert.NotPanics(t, func() {
		rec.Write([]Sample{1, 2, 3})
	})
	assert.True(t, rec.Disabled())
	assert.Error(t, rec.Err())
}

func TestRecorder_EmptyWriteIsNoop(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 0, 16000, time.Now())
	require.NoError(t, err)
	defer rec.Close()

	assert.NotPanics(t, func() {
		rec.Write(nil)
	})
	assert.False(t, rec.Disabled())
}

func TestRecorder_OpenFailureReturnsDisabledRecorder(t *testing.T) {
	// A directory path that cannot be created (parent is itself a file)
	// forces MkdirAll to fail.
	dir := t.TempDir()
	blocker := dir + "/blocker"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	rec, err := NewRecorder(blocker+"/sub", 0, 16000, time.Now())
	assert.Error(t, err)
	assert.True(t, rec.Disabled())
}
