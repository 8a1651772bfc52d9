package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/config"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/service"
)

func newTestWatcher(svc service.CatalogService, cfg config.IngestConfig) *Watcher {
	return &Watcher{
		pipeline: NewPipeline(svc, cfg, nil),
		svc:      svc,
		cfg:      cfg,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
}

func TestWatcherRelevant(t *testing.T) {
	w := newTestWatcher(&fakeService{}, config.IngestConfig{
		Include: []string{"*.json", "*.yaml"},
		Exclude: []string{"*.draft.json"},
	})

	assert.True(t, w.relevant("/defs/tools.json"))
	assert.True(t, w.relevant("/defs/nested/data-sources.yaml"))
	assert.False(t, w.relevant("/defs/notes.txt"))
	assert.False(t, w.relevant("/defs/tools.draft.json"))
}

func TestWatcherWriteReingestsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tools.json", `{"title": "HTTP Client"}`)

	var upserts int32
	svc := &fakeService{
		upsertFn: func(ctx context.Context, tpl *models.Template) (*service.UpsertResult, error) {
			atomic.AddInt32(&upserts, 1)
			return &service.UpsertResult{Template: tpl, Created: true}, nil
		},
	}

	w := newTestWatcher(svc, config.IngestConfig{Include: []string{"*.json"}})
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&upserts))
}

func TestWatcherRemovalArchivesByDefault(t *testing.T) {
	var archivedLocation string
	svc := &fakeService{
		archiveFn: func(ctx context.Context, location string) (int, error) {
			archivedLocation = location
			return 2, nil
		},
	}

	w := newTestWatcher(svc, config.IngestConfig{
		Include:       []string{"*.json"},
		RemovalPolicy: config.RemovalArchive,
	})
	w.handleEvent(fsnotify.Event{Name: "/defs/tools.json", Op: fsnotify.Remove})
	w.wg.Wait()

	assert.Equal(t, "/defs/tools.json", archivedLocation)
}

func TestWatcherRemovalIgnorePolicy(t *testing.T) {
	svc := &fakeService{
		archiveFn: func(ctx context.Context, location string) (int, error) {
			t.Error("removal must not archive under the ignore policy")
			return 0, nil
		},
	}

	w := newTestWatcher(svc, config.IngestConfig{
		Include:       []string{"*.json"},
		RemovalPolicy: config.RemovalIgnore,
	})
	w.handleEvent(fsnotify.Event{Name: "/defs/tools.json", Op: fsnotify.Rename})
	w.wg.Wait()
}

func TestWatcherIgnoresIrrelevantEvents(t *testing.T) {
	svc := &fakeService{
		upsertFn: func(ctx context.Context, tpl *models.Template) (*service.UpsertResult, error) {
			t.Error("unmatched files must not be ingested")
			return nil, nil
		},
	}

	w := newTestWatcher(svc, config.IngestConfig{Include: []string{"*.json"}})
	w.handleEvent(fsnotify.Event{Name: "/defs/readme.md", Op: fsnotify.Write})
	w.wg.Wait()
}

func TestWatcherRegistersNestedDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))

	cfg := config.IngestConfig{Roots: []string{root}, Include: []string{"*.json"}}
	w, err := NewWatcher(NewPipeline(&fakeService{}, cfg, nil), &fakeService{}, cfg, nil)
	require.NoError(t, err)
	defer w.Stop()

	// Discovery is recursive, so the watch must cover nested directories
	// too or changes under them would never re-ingest.
	assert.Contains(t, w.watcher.WatchList(), nested)

	late := filepath.Join(root, "late")
	require.NoError(t, os.Mkdir(late, 0o755))
	w.handleEvent(fsnotify.Event{Name: late, Op: fsnotify.Create})
	assert.Contains(t, w.watcher.WatchList(), late)
}

func TestWatcherWriteInNestedDirectoryReingests(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))
	path := filepath.Join(nested, "tools.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title": "HTTP Client"}`), 0o644))

	var upserts int32
	svc := &fakeService{
		upsertFn: func(ctx context.Context, tpl *models.Template) (*service.UpsertResult, error) {
			atomic.AddInt32(&upserts, 1)
			return &service.UpsertResult{Template: tpl, Created: true}, nil
		},
	}

	cfg := config.IngestConfig{Roots: []string{root}, Include: []string{"*.json"}}
	w, err := NewWatcher(NewPipeline(svc, cfg, nil), svc, cfg, nil)
	require.NoError(t, err)
	defer w.Stop()

	require.Contains(t, w.watcher.WatchList(), nested)
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&upserts))
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(NewPipeline(&fakeService{}, config.IngestConfig{Roots: []string{t.TempDir()}}, nil),
		&fakeService{}, config.IngestConfig{Roots: []string{t.TempDir()}}, nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()
}
