package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

// SyncConfig holds configuration for the sync command
type SyncConfig struct {
	DryRun       bool
	Watch        bool
	DebounceTime int
}

// NewSyncConfig creates a new SyncConfig with default values
func NewSyncConfig() *SyncConfig {
	return &SyncConfig{
		DebounceTime: 500,
	}
}

// Validate validates the SyncConfig and returns an error if invalid
func (c *SyncConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	if c.Watch && c.DryRun {
		return errors.New("--watch and --dry-run cannot be combined")
	}
	return nil
}

// FileEvent represents a file system event with additional metadata
type FileEvent struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local changes, then pull platform-only items",
	Long: `Push new and changed local definitions to the platform, then add items that
exist only on the platform to the local config. Local definitions win
conflicts. With --watch, sync runs again whenever the config file changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg := getSyncConfigFromFlags(cmd)
		if err := cfg.Validate(); err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		client, _, err := newPlatformClient(ctx, credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}

		path := projectConfigPath()
		if _, err := runSync(ctx, client, path, cfg.DryRun); err != nil {
			presenter.Error(err, "Sync failed")
			if !cfg.Watch {
				os.Exit(1)
			}
		}
		if !cfg.Watch {
			return
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Stopping watch...")
			cancel()
		}()

		if err := watchConfig(ctx, path, time.Duration(cfg.DebounceTime)*time.Millisecond, func(ctx context.Context) {
			if _, err := runSync(ctx, client, path, false); err != nil {
				presenter.Error(err, "Sync failed")
			}
		}); err != nil {
			presenter.Error(err, "Failed to watch config")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewSyncConfig()
	syncCmd.Flags().Bool("dry-run", defaults.DryRun, "Show what would change without changing anything")
	syncCmd.Flags().BoolP("watch", "w", defaults.Watch, "Sync again whenever the config file changes")
	syncCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for config change events")
}

func getSyncConfigFromFlags(cmd *cobra.Command) *SyncConfig {
	c := NewSyncConfig()

	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		c.DryRun = dryRun
	}
	if watch, err := cmd.Flags().GetBool("watch"); err == nil {
		c.Watch = watch
	}
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		c.DebounceTime = debounceTime
	}

	return c
}

func runSync(ctx context.Context, api projectsync.API, path string, dryRun bool) (*projectsync.SyncResult, error) {
	local, plan, err := loadPlan(ctx, api, path)
	if err != nil {
		return nil, err
	}

	if dryRun {
		preview := projectsync.PlanSync(plan)
		presenter.Table(changeHeaders, changeRows(preview.Pushed))
		diff, err := projectsync.DryRunDiff(path, local, preview.Config)
		if err != nil {
			return nil, err
		}
		presenter.Diff(diff)
		presenter.Info(fmt.Sprintf("Dry run: %s would be pushed, %s pulled",
			pluralize(len(preview.Pushed), "change"), pluralize(len(preview.Pulled), "change")))
		return preview, nil
	}

	result, syncErr := projectsync.Sync(ctx, api, plan)
	if len(result.Pulled) > 0 {
		if err := result.Config.Save(path); err != nil {
			return result, err
		}
	}

	if len(result.Pushed) == 0 && len(result.Pulled) == 0 && syncErr == nil {
		presenter.Success("In sync")
		return result, nil
	}
	presenter.Table(changeHeaders, changeRows(append(append([]projectsync.Change{}, result.Pushed...), result.Pulled...)))
	presenter.Success(fmt.Sprintf("Pushed %s, pulled %s",
		pluralize(len(result.Pushed), "change"), pluralize(len(result.Pulled), "change")))
	return result, syncErr
}

// watchConfig calls onChange after each debounced write to path until ctx
// is done. The parent directory is watched so editors that replace the file
// are handled.
func watchConfig(ctx context.Context, path string, delay time.Duration, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", path)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	events := make(chan FileEvent)
	debouncedEvents := make(chan FileEvent)
	go debounceFileEvents(ctx, events, debouncedEvents, delay)

	presenter.Info(fmt.Sprintf("Watching %s for changes... Press Ctrl+C to stop", path))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case events <- FileEvent{Path: event.Name, Op: event.Op, Time: time.Now()}:
			case <-ctx.Done():
				return nil
			}
		case event := <-debouncedEvents:
			logger.G(ctx).WithFields(map[string]any{
				"file":      event.Path,
				"operation": event.Op.String(),
				"timestamp": event.Time,
			}).Debug("config change detected")
			presenter.Info(fmt.Sprintf("Change detected: %s", event.Path))
			onChange(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Warn("error watching config")
		case <-ctx.Done():
			return nil
		}
	}
}

// debounceFileEvents forwards an event only after no further event for the
// same path arrived within delay.
func debounceFileEvents(ctx context.Context, input <-chan FileEvent, output chan<- FileEvent, delay time.Duration) {
	newDebouncer(output, delay).run(ctx, input)
}

type debouncer struct {
	output chan<- FileEvent
	delay  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newDebouncer(output chan<- FileEvent, delay time.Duration) *debouncer {
	return &debouncer{output: output, delay: delay, pending: make(map[string]*time.Timer)}
}

func (d *debouncer) run(ctx context.Context, input <-chan FileEvent) {
	defer d.stop()
	for {
		select {
		case event, ok := <-input:
			if !ok {
				return
			}
			d.schedule(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (d *debouncer) schedule(ctx context.Context, event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.pending[event.Path]; exists {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a later event may have replaced this timer before it fired
		if d.pending[event.Path] == timer {
			delete(d.pending, event.Path)
		}
		d.mu.Unlock()

		select {
		case d.output <- event:
		case <-ctx.Done():
		}
	})
	d.pending[event.Path] = timer
}

func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, timer := range d.pending {
		timer.Stop()
		delete(d.pending, path)
	}
}
