// internal/importer/watcher.go
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"docforge/internal/aspect"
)

// Watcher re-runs a domain import whenever its init files change. Events are
// debounced so one editor save burst triggers one import.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	debounce time.Duration
	done     chan struct{}
}

func NewWatcher(loader *Loader, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		loader:   loader,
		watcher:  fw,
		log:      log,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Watch imports the domain once, then blocks re-importing on changes until
// Close is called.
func (w *Watcher) Watch(domainDir string, mode aspect.ParseMode, ordering Ordering) error {
	if err := w.addRecursive(domainDir); err != nil {
		return err
	}

	run := func() {
		report, err := w.loader.Run(domainDir, mode, ordering)
		if err != nil {
			w.log.Error("import failed", zap.String("domain", domainDir), zap.Error(err))
			return
		}
		PrintReport(os.Stdout, report)
	}
	run()

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			w.log.Debug("init file changed", zap.String("path", event.Name))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", zap.Error(err))
		case <-pending:
			run()
		case <-w.done:
			return nil
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("adding directory to watcher: %w", err)
			}
		}
		return nil
	})
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
