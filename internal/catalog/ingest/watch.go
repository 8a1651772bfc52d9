package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/config"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/service"
)

// Watcher re-ingests definition files as they change on disk. Create and
// Write events run the single-file path; Remove and Rename apply the
// configured removal policy. A per-file mutex keeps at most one upsert in
// flight per definition file; a rapid create+write pair on the same path
// is serialized rather than raced.
type Watcher struct {
	pipeline *Pipeline
	svc      service.CatalogService
	cfg      config.IngestConfig
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	locks   sync.Map
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewWatcher builds a watcher over the configured ingestion roots.
func NewWatcher(pipeline *Pipeline, svc service.CatalogService, cfg config.IngestConfig, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range cfg.Roots {
		if err := watchTree(fsWatcher, root); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		pipeline: pipeline,
		svc:      svc,
		cfg:      cfg,
		logger:   logger.Named("watch"),
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

// Run processes filesystem events until the context is cancelled or Stop
// is called. In-flight upserts finish before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch mode started", zap.Strings("roots", w.cfg.Roots))
	defer w.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Stop detaches the watcher. Events already being processed run to
// completion; Run returns once they finish.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// watchTree registers dir and every directory below it. Discovery walks
// roots recursively, so the watch has to as well; fsnotify itself is not
// recursive.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// handleEvent dispatches work detached from the run context so a shutdown
// never interrupts an in-flight upsert.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A new directory joins the watch so definitions created
			// inside it are picked up.
			if err := watchTree(w.watcher, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					zap.String("dir", event.Name),
					zap.Error(err),
				)
			}
			return
		}
	}
	if !w.relevant(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		w.dispatch(event.Name, func(ctx context.Context) {
			result, err := w.pipeline.IngestFile(ctx, event.Name)
			if err != nil {
				w.logger.Warn("re-ingestion failed", zap.String("file", event.Name), zap.Error(err))
				return
			}
			w.logger.Info("file re-ingested",
				zap.String("file", event.Name),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("skipped", result.Skipped),
				zap.Int("failed", result.Failed),
			)
		})
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.dispatch(event.Name, func(ctx context.Context) {
			w.handleRemoval(ctx, event.Name)
		})
	}
}

func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	return matchesAny(base, w.cfg.Include) && !matchesAny(base, w.cfg.Exclude)
}

// dispatch runs fn on its own goroutine, serialized per file path.
func (w *Watcher) dispatch(file string, fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		lock, _ := w.locks.LoadOrStore(file, &sync.Mutex{})
		mu := lock.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()

		fn(context.Background())
	}()
}

func (w *Watcher) handleRemoval(ctx context.Context, file string) {
	switch w.cfg.RemovalPolicy {
	case config.RemovalIgnore:
		w.logger.Info("source removed, ignoring per policy", zap.String("file", file))
	default:
		archived, err := w.svc.ArchiveBySourceLocation(ctx, file)
		if err != nil {
			w.logger.Warn("archival after removal failed", zap.String("file", file), zap.Error(err))
			return
		}
		w.logger.Info("source removed, templates archived",
			zap.String("file", file),
			zap.Int("archived", archived),
		)
	}
}
