package dirwatch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debouncePeriod coalesces bursts of filesystem events (a file copy emits
// many) into a single processing pass.
const debouncePeriod = 2 * time.Second

// Watcher drives continuous mode for one directory: an initial pass, then
// further passes whenever eligible files appear, plus a periodic rescan as a
// safety net for events the watcher misses (e.g. files moved in from the
// same filesystem before the watch was established).
type Watcher struct {
	dir      string
	interval time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a Watcher for dir. interval is the periodic rescan
// cadence.
func NewWatcher(dir string, interval time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{dir: dir, interval: interval, fsw: fsw}, nil
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run performs an initial pass, then invokes pass again (debounced) for
// every new eligible file and on each rescan tick, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, pass func(context.Context)) {
	log.Info().
		Str("directory", w.dir).
		Dur("rescan_interval", w.interval).
		Msg("Watching directory for input files")

	pass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(debouncePeriod)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("directory", w.dir).Msg("Watch stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || strings.ToLower(filepath.Ext(name)) != inputExtension {
				continue
			}
			log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("New input file detected")
			debounce.Reset(debouncePeriod)

		case <-debounce.C:
			pass(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("directory", w.dir).Msg("Filesystem watch error")

		case <-ticker.C:
			pass(ctx)
		}
	}
}
