package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_TriggersHandlerOnMoveFileChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.move"), []byte("module m {}"), 0o644))

	var calls int32
	w, err := NewWatcher(dir, func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.move"), []byte("module m { fun f() {} }"), 0o644))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresNonMoveFiles(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	w, err := NewWatcher(dir, func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
