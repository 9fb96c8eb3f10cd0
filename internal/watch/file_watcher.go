package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/repobuilder/internal/logfields"
)

// FileWatcher calls onChange, debounced, whenever one file is written,
// created or renamed into place.
type FileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
	trigger  chan struct{}
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string, debounce time.Duration, onChange func(ctx context.Context), logger *slog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve watched path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileWatcher{
		path:     absPath,
		watcher:  watcher,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		stopChan: make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Start begins watching. The parent directory is watched so that editors that
// replace the file by rename are seen.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	fw.logger.Info("Watching candidates file", logfields.Path(fw.path))

	go fw.watchLoop(ctx)
	go fw.debounceLoop(ctx)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.stopped {
		return nil
	}
	fw.stopped = true
	close(fw.stopChan)
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	name := filepath.Base(fw.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				fw.logger.Debug("Candidates file changed", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				fw.notify()
			case event.Has(fsnotify.Remove):
				fw.logger.Warn("Candidates file removed", logfields.Path(event.Name))
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (fw *FileWatcher) notify() {
	select {
	case fw.trigger <- struct{}{}:
	default:
	}
}

// debounceLoop fires onChange once the file has been quiet for the debounce interval.
func (fw *FileWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-fw.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-fw.trigger:
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fw.onChange(ctx)
		}
	}
}
