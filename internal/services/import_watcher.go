package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fsnotify/fsnotify"
)

const (
	processedDirName = "processed"
	failedDirName    = "failed"

	// DefaultImportDebounce is how long a file must stay quiet before it is imported
	DefaultImportDebounce = 500 * time.Millisecond
)

// ImportInboxWatcher imports KML/KMZ files dropped into <inbox>/<farmId>/
type ImportInboxWatcher struct {
	inboxPath string
	debounce  time.Duration
	importer  *FileImportService
	logger    *observability.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	queue   map[string]time.Time
}

// NewImportInboxWatcher creates a new ImportInboxWatcher
func NewImportInboxWatcher(inboxPath string, debounce time.Duration, importer *FileImportService) *ImportInboxWatcher {
	if debounce <= 0 {
		debounce = DefaultImportDebounce
	}
	return &ImportInboxWatcher{
		inboxPath: inboxPath,
		debounce:  debounce,
		importer:  importer,
		logger:    observability.WithField("component", "import_inbox"),
		queue:     make(map[string]time.Time),
	}
}

// Start watches the inbox and queues files already waiting in it
func (w *ImportInboxWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("import watcher already running")
	}
	if err := os.MkdirAll(w.inboxPath, 0755); err != nil {
		return fmt.Errorf("failed to create import inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.inboxPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch import inbox %s: %w", w.inboxPath, err)
	}

	entries, err := os.ReadDir(w.inboxPath)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to read import inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchFarmDir(watcher, filepath.Join(w.inboxPath, e.Name()))
		}
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true

	w.wg.Add(2)
	go w.processEvents()
	go w.processQueue()

	w.logger.Infof("Watching import inbox %s", w.inboxPath)
	return nil
}

// Stop ends watching and waits for in-flight imports
func (w *ImportInboxWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// watchFarmDir adds a farm folder to the watcher and queues its pending files.
// Must be called with w.mu held.
func (w *ImportInboxWatcher) watchFarmDir(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		w.logger.Warnf("Failed to watch %s: %v", dir, err)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() && isImportable(e.Name()) {
			w.queue[filepath.Join(dir, e.Name())] = now
		}
	}
}

func (w *ImportInboxWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Import watcher error: %v", err)
		}
	}
}

func (w *ImportInboxWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	dir := filepath.Dir(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if filepath.Clean(dir) == filepath.Clean(w.inboxPath) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchFarmDir(w.watcher, event.Name)
		}
		return
	}

	if filepath.Clean(filepath.Dir(dir)) != filepath.Clean(w.inboxPath) || !isImportable(event.Name) {
		return
	}
	w.queue[event.Name] = time.Now()
}

func (w *ImportInboxWatcher) processQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			for _, path := range w.ready() {
				w.importFile(context.Background(), path)
			}
		}
	}
}

// ready pops the files that have been quiet for the debounce interval
func (w *ImportInboxWatcher) ready() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var paths []string
	for path, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.debounce {
			continue
		}
		paths = append(paths, path)
		delete(w.queue, path)
	}
	return paths
}

func (w *ImportInboxWatcher) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warnf("Failed to read %s: %v", path, err)
		}
		return
	}

	farmID := filepath.Base(filepath.Dir(path))
	record, err := w.importer.Import(ctx, &models.FileImportRequest{
		FarmID:   farmID,
		FileName: filepath.Base(path),
		Data:     data,
	})

	target := processedDirName
	if err != nil {
		target = failedDirName
		w.logger.Errorf("Failed to import %s: %v", path, err)
	} else {
		w.logger.WithField("record_id", record.ID).Infof("Imported %s for farm %s", filepath.Base(path), farmID)
	}

	destDir := filepath.Join(filepath.Dir(path), target)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		w.logger.Warnf("Failed to create %s: %v", destDir, err)
		return
	}
	dest := filepath.Join(destDir, uniqueFilename(filepath.Base(path), destDir))
	if err := moveFile(path, dest); err != nil {
		w.logger.Warnf("Failed to move %s: %v", path, err)
	}
}

func isImportable(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	_, err := models.FileKindFromName(name)
	return err == nil
}
