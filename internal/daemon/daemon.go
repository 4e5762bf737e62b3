// Package daemon provides the watch daemon that keeps a directory of
// page files synced to the Roam backend.
//
// The daemon:
// 1. Watches a directory of .md page files for changes
// 2. Pushes changed pages through the sync pipeline
// 3. Periodically sweeps stale entries from the block cache
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roamtools/roamsync/internal/cache"
	"github.com/roamtools/roamsync/internal/dashboard"
	"github.com/roamtools/roamsync/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must sit quiet before its
	// change is pushed. This batches rapid editor saves together.
	DebounceInterval time.Duration

	// SweepInterval is how often stale cache entries are removed.
	SweepInterval time.Duration

	// CacheTTL is the age past which a cached page counts as stale.
	CacheTTL time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		SweepInterval:    10 * time.Minute,
		CacheTTL:         cache.DefaultTTL,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and page synchronization.
type Daemon struct {
	syncer   sync.Syncer
	store    *cache.Store
	events   *dashboard.Handler
	watchDir string
	config   *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu gosync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a Daemon watching watchDir.
//
// store may be nil to disable cache sweeps, and events may be nil when
// no dashboard is running. Use Start() to begin watching.
func New(syncer sync.Syncer, store *cache.Store, events *dashboard.Handler, watchDir string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if watchDir == "" {
		return nil, fmt.Errorf("watchDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		store:       store,
		events:      events,
		watchDir:    watchDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon pushes every page file once, then watches for changes and
// pushes them with debouncing. This blocks until ctx is cancelled or an
// error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.SyncAll(); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.watcher.Add(d.watchDir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.watchDir)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.sweepCache()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// SyncAll pushes every page file in the watch directory.
//
// Individual page failures are logged and reported to the dashboard but
// do not stop the sweep. It's called on startup and can be triggered
// manually.
func (d *Daemon) SyncAll() error {
	entries, err := os.ReadDir(d.watchDir)
	if err != nil {
		return fmt.Errorf("failed to read watch directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !isPageFile(entry.Name()) {
			continue
		}
		count++
		d.syncFile(filepath.Join(d.watchDir, entry.Name()))
	}

	d.config.Logger.Printf("Initial sync complete (%d pages)", count)
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Rename
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isPageFile(event.Name) {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges pushes files that have been quiet long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			// Deleting the local file does not delete the remote page.
			d.config.Logger.Printf("File removed, skipping: %s", path)
			continue
		}
		d.syncFile(path)
	}
}

// syncFile pushes one page file and reports the outcome.
func (d *Daemon) syncFile(path string) {
	title := sync.TitleFromPath(path)

	result, err := d.syncer.SyncFile(d.ctx, path, title)
	if err != nil {
		d.config.Logger.Printf("Error syncing %s: %v", path, err)
		d.events.OnSyncError(title, path, err)
		return
	}
	if result.Changed() {
		d.events.OnPageSynced(result)
	}
}

// sweepCache periodically removes stale entries from the block cache.
func (d *Daemon) sweepCache() {
	defer d.wg.Done()

	if d.store == nil {
		return
	}

	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			removed, err := d.store.DeleteStale(d.ctx, d.config.CacheTTL)
			if err != nil {
				d.config.Logger.Printf("Cache sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				d.config.Logger.Printf("Cache sweep removed %d entries", removed)
				d.events.OnCacheSweep(removed)
			}
		}
	}
}

func isPageFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}
