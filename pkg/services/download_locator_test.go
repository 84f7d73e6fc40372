package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/config"
)

func newTestLocator(dir string, attempts int) DownloadLocator {
	return NewDownloadLocator(dir, config.DownloadConfig{
		PendingName:     testPending,
		PollInterval:    10 * time.Millisecond,
		MaxWaitAttempts: attempts,
	}, zap.NewNop())
}

func TestDownloadLocator_FileAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testPending), []byte("pdf"), 0o644))

	path, err := newTestLocator(dir, 3).Finalize(context.Background(), testPending, 101)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "101.pdf"), path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(dir, testPending))
}

func TestDownloadLocator_WaitsForLateFile(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(50 * time.Millisecond)
		// Browsers write to a temporary name and rename when done.
		partial := filepath.Join(dir, testPending+".crdownload")
		if err := os.WriteFile(partial, []byte("pdf"), 0o644); err != nil {
			return
		}
		_ = os.Rename(partial, filepath.Join(dir, testPending))
	}()

	path, err := newTestLocator(dir, 200).Finalize(context.Background(), testPending, 102)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))
}

func TestDownloadLocator_Timeout(t *testing.T) {
	dir := t.TempDir()

	_, err := newTestLocator(dir, 3).Finalize(context.Background(), testPending, 103)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Contains(t, err.Error(), "ticket 103")
}

func TestDownloadLocator_SecondCallFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testPending), []byte("pdf"), 0o644))
	locator := newTestLocator(dir, 3)

	_, err := locator.Finalize(context.Background(), testPending, 104)
	require.NoError(t, err)

	_, err = locator.Finalize(context.Background(), testPending, 104)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestDownloadLocator_TargetExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "105.pdf"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, testPending), []byte("new"), 0o644))

	_, err := newTestLocator(dir, 3).Finalize(context.Background(), testPending, 105)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(filepath.Join(dir, "105.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.FileExists(t, filepath.Join(dir, testPending))
}

func TestDownloadLocator_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLocator(dir, 100).Finalize(ctx, testPending, 106)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadLocator_DiscardMovesLeftoverAside(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testPending), []byte("CONTENT OF TICKET 555"), 0o644))
	locator := newTestLocator(dir, 3)

	stale, err := locator.Discard(testPending)
	require.NoError(t, err)
	require.NotEmpty(t, stale)
	assert.NoFileExists(t, filepath.Join(dir, testPending))

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "CONTENT OF TICKET 555", string(data))

	// The leftover can no longer be finalized as another ticket.
	_, err = locator.Finalize(context.Background(), testPending, 102)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.NoFileExists(t, filepath.Join(dir, "102.pdf"))
}

func TestDownloadLocator_DiscardWithoutLeftover(t *testing.T) {
	stale, err := newTestLocator(t.TempDir(), 3).Discard(testPending)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
