package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay lets a file finish being written before it is uploaded;
// editors and camera apps emit several write events per save.
const debounceDelay = 500 * time.Millisecond

// Watcher uploads image files dropped into a directory. It is the manual
// alternative to the camera poller: photograph the board with a phone, sync
// the file into the watched folder.
type Watcher struct {
	dir      string
	uploader frameSink
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher watches dir for new images.
func NewWatcher(dir string, uploader frameSink, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		uploader: uploader,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Run blocks until ctx is cancelled, uploading each image file after its
// writes settle.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for images", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isImageFile(event.Name) {
				continue
			}
			w.scheduleUpload(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// scheduleUpload (re)arms the debounce timer for path.
func (w *Watcher) scheduleUpload(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(debounceDelay)
		return
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.uploadFile(ctx, path)
	})
}

func (w *Watcher) uploadFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read image failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := w.uploader.Upload(ctx, filepath.Base(path), data); err != nil {
		w.logger.Warn("upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("image uploaded", zap.String("path", path), zap.Int("bytes", len(data)))
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
