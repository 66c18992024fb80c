package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/session"
)

const (
	debounceWindow = 5 * time.Second
	sweepInterval  = 5 * time.Minute
)

// FolderWatcher implements Watcher on top of fsnotify with a periodic rescan
type FolderWatcher struct {
	cfg       *Config
	tracker   Tracker
	history   History
	processor FileProcessor
	fsw       *fsnotify.Watcher
	progress  ProgressCallback

	statsMu sync.Mutex
	stats   Stats

	eventsMu     sync.Mutex
	recentEvents map[string]time.Time

	// settled remembers the mtime a path had when it was last handled
	settledMu sync.Mutex
	settled   map[string]time.Time

	initialMu      sync.Mutex
	initialPending map[string]bool
	initialWG      sync.WaitGroup
	initialDone    chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	queue    chan string
	loops    sync.WaitGroup
	workers  sync.WaitGroup
}

// New creates a watcher that hands every new file to runner
func New(cfg *Config, runner session.Runner) (*FolderWatcher, error) {
	if cfg.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	cfg.applyDefaults()

	history, err := OpenHistory(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing history: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &FolderWatcher{
		cfg:            cfg,
		tracker:        NewTracker(),
		history:        history,
		fsw:            fsw,
		recentEvents:   make(map[string]time.Time),
		settled:        make(map[string]time.Time),
		initialPending: make(map[string]bool),
		initialDone:    make(chan struct{}),
		stopCh:         make(chan struct{}),
		queue:          make(chan string, cfg.MaxWorkers*2),
	}
	w.processor = NewFileProcessor(cfg, runner, w.tracker, history, w.handleEvent)
	return w, nil
}

// Start registers the directory, queues existing files and starts the loops
func (w *FolderWatcher) Start(ctx context.Context) error {
	log := logger.WithComponent("watcher")

	if err := w.addDirs(w.cfg.WatchDir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	w.statsMu.Lock()
	w.stats.StartTime = time.Now()
	w.statsMu.Unlock()

	for i := 0; i < w.cfg.MaxWorkers; i++ {
		w.workers.Add(1)
		go w.worker(ctx, i)
	}

	w.loops.Add(1)
	go w.sweepLoop()

	if err := w.removeStaleMarkers(); err != nil {
		log.Warn().Err(err).Msg("Failed to clean up stale processing markers")
	}

	if w.cfg.ProcessExisting {
		log.Info().Msg("Processing existing files")
		if err := w.queueExisting(); err != nil {
			log.Warn().Err(err).Msg("Failed to queue some existing files")
		}
	}
	go func() {
		w.initialWG.Wait()
		close(w.initialDone)
	}()

	w.loops.Add(1)
	go w.watchLoop(ctx)

	log.Info().
		Str("directory", w.cfg.WatchDir).
		Bool("recursive", w.cfg.Recursive).
		Strs("patterns", w.cfg.Patterns).
		Int("workers", w.cfg.MaxWorkers).
		Msg("File watcher started")

	return nil
}

// Stop waits for in-flight files and closes the history. Safe to call twice.
func (w *FolderWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		log := logger.WithComponent("watcher")
		log.Info().Msg("Stopping file watcher")

		close(w.stopCh)
		if closeErr := w.fsw.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Error closing fsnotify watcher")
		}

		// Producers must be gone before the queue closes
		w.loops.Wait()
		close(w.queue)
		w.workers.Wait()

		if closeErr := w.history.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close history: %w", closeErr)
		}
		log.Info().Msg("File watcher stopped")
	})
	return err
}

// SetProgressCallback must be called before Start
func (w *FolderWatcher) SetProgressCallback(callback ProgressCallback) {
	w.progress = callback
}

// Stats returns a snapshot of the counters
func (w *FolderWatcher) Stats() Stats {
	w.statsMu.Lock()
	stats := w.stats
	w.statsMu.Unlock()

	stats.InProgress = len(w.tracker.Paths())
	return stats
}

// InitialDone is closed once files present at Start have been handled
func (w *FolderWatcher) InitialDone() <-chan struct{} {
	return w.initialDone
}

func (w *FolderWatcher) addDirs(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	if !w.cfg.Recursive {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// walkFiles visits regular files under the watch directory, honouring Recursive
func (w *FolderWatcher) walkFiles(visit func(path string, info os.FileInfo) error) error {
	root := w.cfg.WatchDir
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !w.cfg.Recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		return visit(path, info)
	})
}

func (w *FolderWatcher) queueExisting() error {
	log := logger.WithComponent("watcher")

	return w.walkFiles(func(path string, info os.FileInfo) error {
		if !w.processor.CanProcess(path) {
			return nil
		}
		log.Debug().Str("file", path).Msg("Queueing existing file")

		w.initialMu.Lock()
		w.initialPending[path] = true
		w.initialWG.Add(1)
		w.initialMu.Unlock()

		select {
		case w.queue <- path:
			return nil
		case <-w.stopCh:
			w.finishInitial(path)
			return fmt.Errorf("watcher stopped")
		}
	})
}

func (w *FolderWatcher) watchLoop(ctx context.Context) {
	defer w.loops.Done()
	log := logger.WithComponent("watcher")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			w.rescan()
		}
	}
}

func (w *FolderWatcher) handleFSEvent(event fsnotify.Event) {
	log := logger.WithComponent("watcher").WithField("file", event.Name)

	if event.Op.Has(fsnotify.Create) && w.cfg.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				log.Warn().Err(err).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if w.isDuplicateEvent(event.Name) {
		log.Debug().Msg("Duplicate event ignored")
		return
	}
	if !w.tracker.Held(event.Name) && w.processor.CanProcess(event.Name) {
		w.enqueue(event.Name)
	}
}

// rescan catches files fsnotify missed
func (w *FolderWatcher) rescan() {
	_ = w.walkFiles(func(path string, info os.FileInfo) error {
		if w.isSettled(path, info.ModTime()) || w.tracker.Held(path) {
			return nil
		}
		if w.processor.CanProcess(path) {
			w.enqueue(path)
		}
		return nil
	})
}

func (w *FolderWatcher) enqueue(path string) {
	select {
	case w.queue <- path:
		w.handleEvent(&Event{Type: EventFound, Path: path, Message: "File queued for processing", At: time.Now()})
	default:
		logger.WithComponent("watcher").Warn().Str("file", path).Msg("Worker queue is full, skipping file")
	}
}

func (w *FolderWatcher) worker(ctx context.Context, id int) {
	defer w.workers.Done()
	log := logger.WithComponent("worker").WithField("worker", id)

	for path := range w.queue {
		if ctx.Err() == nil {
			log.Debug().Str("file", path).Msg("Processing file")
			if err := w.processor.ProcessFile(ctx, path); err != nil {
				log.Error().Err(err).Str("file", path).Msg("Failed to process file")
			}
			if info, err := os.Stat(path); err == nil {
				w.settle(path, info.ModTime())
			}
		}
		w.finishInitial(path)
	}
}

func (w *FolderWatcher) finishInitial(path string) {
	w.initialMu.Lock()
	defer w.initialMu.Unlock()
	if w.initialPending[path] {
		delete(w.initialPending, path)
		w.initialWG.Done()
	}
}

func (w *FolderWatcher) settle(path string, modTime time.Time) {
	w.settledMu.Lock()
	w.settled[path] = modTime
	w.settledMu.Unlock()
}

func (w *FolderWatcher) isSettled(path string, modTime time.Time) bool {
	w.settledMu.Lock()
	defer w.settledMu.Unlock()
	last, ok := w.settled[path]
	return ok && last.Equal(modTime)
}

// sweepLoop expires stale locks and old debounce entries
func (w *FolderWatcher) sweepLoop() {
	defer w.loops.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if n := w.tracker.Expire(w.cfg.ProcessingTimeout); n > 0 {
				logger.WithComponent("watcher").Info().Int("cleaned", n).Msg("Cleaned up stale locks")
			}
			w.pruneRecentEvents(30 * time.Second)
		}
	}
}

// handleEvent updates the counters and forwards to the callback
func (w *FolderWatcher) handleEvent(event *Event) {
	w.statsMu.Lock()
	switch event.Type {
	case EventCompleted:
		w.stats.Completed++
		if event.Result != nil {
			w.stats.Identified += event.Result.Counts.Identified
		}
	case EventFailed:
		w.stats.Failed++
	case EventSkipped:
		w.stats.Skipped++
	}
	w.statsMu.Unlock()

	if w.progress != nil {
		w.progress(event)
	}
}

// removeStaleMarkers deletes marker files left behind by a crashed run
func (w *FolderWatcher) removeStaleMarkers() error {
	log := logger.WithComponent("watcher")
	cleaned := 0

	err := w.walkFiles(func(path string, info os.FileInfo) error {
		if !strings.HasSuffix(path, markerSuffix) || time.Since(info.ModTime()) <= w.cfg.ProcessingTimeout {
			return nil
		}
		log.Info().Str("marker_file", path).Dur("age", time.Since(info.ModTime())).Msg("Removing stale processing marker")
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("marker_file", path).Msg("Failed to remove stale marker")
			return nil
		}
		cleaned++
		return nil
	})

	if cleaned > 0 {
		log.Info().Int("cleaned_markers", cleaned).Msg("Cleaned up stale processing markers")
	}
	return err
}

func (w *FolderWatcher) isDuplicateEvent(path string) bool {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	now := time.Now()
	if last, ok := w.recentEvents[path]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	w.recentEvents[path] = now
	return false
}

func (w *FolderWatcher) pruneRecentEvents(maxAge time.Duration) {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	for path, at := range w.recentEvents {
		if time.Since(at) > maxAge {
			delete(w.recentEvents, path)
		}
	}
}
