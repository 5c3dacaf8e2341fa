package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
)

// DirWatcher ingests review payloads dropped as .json files into a
// directory. Files are consumed on create/write and moved to a done/
// subdirectory afterwards, so partially written files simply get picked
// up again on the next write event.
type DirWatcher struct {
	dir string
}

var _ ports.ReviewSource = (*DirWatcher)(nil)

func NewDirWatcher(dir string) *DirWatcher {
	return &DirWatcher{dir: dir}
}

// Start watches the drop directory until ctx is cancelled. Files already
// present at startup are consumed first.
func (w *DirWatcher) Start(ctx context.Context, sink ports.ReviewSink) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "source.watcher"),
		slog.String("dir", w.dir))

	if err := os.MkdirAll(filepath.Join(w.dir, "done"), 0o755); err != nil {
		return errs.Wrap(err, "create done dir")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return errs.Wrapf(err, "watch %s", w.dir)
	}

	w.consumeExisting(ctx, sink)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.consumeFile(ctx, sink, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			logging.Error(ctx, "watch error", slog.Any("err", errs.Loggable(err)))
		}
	}
}

func (w *DirWatcher) consumeExisting(ctx context.Context, sink ports.ReviewSink) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Error(ctx, "scan drop dir failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.consumeFile(ctx, sink, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *DirWatcher) consumeFile(ctx context.Context, sink ports.ReviewSink, path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error(ctx, "read payload failed",
				slog.String("path", path),
				slog.Any("err", errs.Loggable(err)))
		}
		return
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		logging.Warn(ctx, "invalid payload file",
			slog.String("path", path),
			slog.Any("err", errs.Loggable(err)))
		return
	}

	if err := sink.HandleReview(ctx, payload.ToReview(time.Now().UTC())); err != nil {
		// Leave the file in place so a later write event retries it.
		logging.Error(ctx, "deliver payload failed",
			slog.String("path", path),
			slog.Any("err", errs.Loggable(err)))
		return
	}

	done := filepath.Join(w.dir, "done", filepath.Base(path))
	if err := os.Rename(path, done); err != nil {
		logging.Warn(ctx, "archive payload file failed",
			slog.String("path", path),
			slog.Any("err", errs.Loggable(err)))
	}
}
