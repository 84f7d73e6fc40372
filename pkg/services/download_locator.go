package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/retry"
)

// DownloadLocator waits for a browser download to land and gives it its final name.
type DownloadLocator interface {
	// Finalize waits for dir/pendingName and renames it to <ticketID><ext>,
	// returning the new path. It fails with apperrors.ErrTimeout when the file
	// never appears, so a second call for the same ticket fails.
	Finalize(ctx context.Context, pendingName string, ticketID int64) (string, error)

	// Discard moves a leftover dir/pendingName aside and returns its new path,
	// or "" when there was none. A download that landed after an earlier
	// timeout must not be taken for the next ticket's.
	Discard(pendingName string) (string, error)
}

type downloadLocator struct {
	dir    string
	policy *retry.Config
	logger *zap.Logger
}

func NewDownloadLocator(dir string, cfg config.DownloadConfig, logger *zap.Logger) DownloadLocator {
	return &downloadLocator{
		dir:    dir,
		policy: retry.Fixed(cfg.PollInterval, cfg.MaxWaitAttempts),
		logger: logger.Named("download-locator"),
	}
}

var _ DownloadLocator = (*downloadLocator)(nil)

func (l *downloadLocator) Finalize(ctx context.Context, pendingName string, ticketID int64) (string, error) {
	pending := filepath.Join(l.dir, pendingName)
	target := filepath.Join(l.dir, fmt.Sprintf("%d%s", ticketID, filepath.Ext(pendingName)))

	wake, stop := l.watch(pendingName)
	defer stop()

	err := retry.PollWithWake(ctx, l.policy, wake, func() (bool, error) {
		_, err := os.Stat(pending)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check download %s: %w", pending, err)
	})
	if err != nil {
		return "", fmt.Errorf("download of ticket %d: %w", ticketID, err)
	}

	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("download of ticket %d: %s already exists", ticketID, target)
	}
	if err := os.Rename(pending, target); err != nil {
		return "", fmt.Errorf("failed to rename download of ticket %d: %w", ticketID, err)
	}

	l.logger.Debug("Download finalized",
		zap.Int64("ticket_id", ticketID),
		zap.String("path", target))
	return target, nil
}

func (l *downloadLocator) Discard(pendingName string) (string, error) {
	pending := filepath.Join(l.dir, pendingName)
	if _, err := os.Stat(pending); errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to check for leftover download: %w", err)
	}

	stale := filepath.Join(l.dir, fmt.Sprintf("stale-%d-%s", time.Now().UnixNano(), pendingName))
	if err := os.Rename(pending, stale); err != nil {
		return "", fmt.Errorf("failed to move leftover download aside: %w", err)
	}

	l.logger.Warn("Moved leftover download aside",
		zap.String("pending", pending),
		zap.String("moved_to", stale))
	return stale, nil
}

// watch signals on the returned channel whenever name is created or renamed
// into the download dir. Without a watcher polling still works, only slower.
func (l *downloadLocator) watch(name string) (<-chan struct{}, func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("File watcher unavailable, polling only", zap.Error(err))
		return nil, func() {}
	}
	if err := watcher.Add(l.dir); err != nil {
		l.logger.Warn("Cannot watch download dir, polling only",
			zap.String("dir", l.dir),
			zap.Error(err))
		watcher.Close()
		return nil, func() {}
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Debug("File watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()

	return wake, func() {
		close(done)
		watcher.Close()
	}
}
