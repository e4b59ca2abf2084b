package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/fontcache"
)

type fakeSource struct {
	mu     sync.Mutex
	calls  map[domain.AssetID]int
	fail   map[domain.AssetID]bool
	delay  time.Duration
	fonts  map[string]int
	broken bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[domain.AssetID]int),
		fail:  make(map[domain.AssetID]bool),
		fonts: make(map[string]int),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, id domain.AssetID) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	fail := f.fail[id]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return nil, errors.New("not found")
	}
	return []byte("data-" + string(id)), nil
}

func (f *fakeSource) FetchFont(ctx context.Context, family string) ([]byte, error) {
	f.mu.Lock()
	f.fonts[family]++
	f.mu.Unlock()
	if f.broken {
		return nil, errors.New("font server down")
	}
	return []byte("ttf-" + family), nil
}

func (f *fakeSource) count(id domain.AssetID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestLoader(t *testing.T, src *fakeSource) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	return New(src, Options{Logger: zerolog.Nop(), Dir: dir, Concurrency: 4}), dir
}

func TestLoadParallel_DeduplicatesIDs(t *testing.T) {
	src := newFakeSource()
	l, _ := newTestLoader(t, src)

	var progress [][2]int
	handles, err := l.LoadParallel(context.Background(), []domain.AssetID{"a", "a", "a"}, func(loaded, total int) {
		progress = append(progress, [2]int{loaded, total})
	})
	require.NoError(t, err)

	assert.Len(t, handles, 1)
	assert.Equal(t, 1, src.count("a"))
	assert.Equal(t, [][2]int{{0, 1}, {1, 1}}, progress)

	data, err := os.ReadFile(handles["a"].Path)
	require.NoError(t, err)
	assert.Equal(t, "data-a", string(data))
}

func TestLoadParallel_ConcurrentCallersShareOneFetch(t *testing.T) {
	src := newFakeSource()
	src.delay = 50 * time.Millisecond
	l, _ := newTestLoader(t, src)

	var wg sync.WaitGroup
	paths := make([]string, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := l.LoadParallel(context.Background(), []domain.AssetID{"clip"}, nil)
			assert.NoError(t, err)
			paths[i] = h["clip"].Path
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, src.count("clip"))
	assert.Equal(t, paths[0], paths[1])
	assert.Equal(t, paths[1], paths[2])
}

func TestLoadParallel_FailureIsAtomic(t *testing.T) {
	src := newFakeSource()
	src.fail["broken"] = true
	l, dir := newTestLoader(t, src)

	_, err := l.LoadParallel(context.Background(), []domain.AssetID{"a", "b", "broken"}, nil)
	require.Error(t, err)

	assert.Equal(t, []domain.AssetID{"broken"}, FailedAssets(err))
	id, ok := errs.AssetIDOf(err)
	assert.True(t, ok)
	assert.Equal(t, "broken", id)
	assert.Equal(t, errs.TypeAsset, errs.TypeOf(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "handles written during a failed batch are removed")

	src.fail["broken"] = false
	handles, err := l.LoadParallel(context.Background(), []domain.AssetID{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Len(t, handles, 2)
	assert.Equal(t, 2, src.count("a"), "rolled back handles are fetched again")
}

func TestLoadParallel_KeepsHandlesFromEarlierBatches(t *testing.T) {
	src := newFakeSource()
	l, _ := newTestLoader(t, src)

	first, err := l.LoadParallel(context.Background(), []domain.AssetID{"a"}, nil)
	require.NoError(t, err)

	src.fail["x"] = true
	_, err = l.LoadParallel(context.Background(), []domain.AssetID{"a", "x"}, nil)
	require.Error(t, err)

	_, statErr := os.Stat(first["a"].Path)
	assert.NoError(t, statErr, "only handles written by the failed call are removed")
}

func TestLoad_WrapsAssetError(t *testing.T) {
	src := newFakeSource()
	src.fail["gone"] = true
	l, _ := newTestLoader(t, src)

	_, err := l.Load(context.Background(), "gone")
	require.Error(t, err)
	id, ok := errs.AssetIDOf(err)
	assert.True(t, ok)
	assert.Equal(t, "gone", id)
}

func TestCleanup_BestEffort(t *testing.T) {
	src := newFakeSource()
	l, dir := newTestLoader(t, src)

	handles, err := l.LoadParallel(context.Background(), []domain.AssetID{"a", "b"}, nil)
	require.NoError(t, err)

	blocked := filepath.Join(dir, "nonempty")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0755))
	handles["stuck"] = domain.Handle{ID: "stuck", Path: blocked}
	handles["missing"] = domain.Handle{ID: "missing", Path: filepath.Join(dir, "nope")}

	report := l.Cleanup(handles)
	assert.Equal(t, 3, report.Removed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, errs.TypeCleanup, errs.TypeOf(report.Errors[0]))

	_, err = l.LoadParallel(context.Background(), []domain.AssetID{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, src.count("a"), "cleaned handles are forgotten")
}

func TestListenerSeesEveryFetch(t *testing.T) {
	src := newFakeSource()
	src.fail["bad"] = true

	var ok, failed atomic.Int32
	l := New(src, Options{
		Logger: zerolog.Nop(),
		Dir:    t.TempDir(),
		Listener: ListenerFunc(func(ctx context.Context, s FetchStatus) {
			if s.Error != "" {
				failed.Add(1)
				return
			}
			ok.Add(1)
		}),
	})

	_, err := l.LoadParallel(context.Background(), []domain.AssetID{"a", "bad"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), failed.Load())
}

func TestFontLoader_UsesPersistentCache(t *testing.T) {
	cache, err := fontcache.Open(fontcache.Options{Path: ":memory:", Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer cache.Close()

	src := newFakeSource()
	first := NewFontLoader(src, cache, Options{Logger: zerolog.Nop(), Dir: t.TempDir()})
	paths, err := first.Load(context.Background(), []string{"Inter", "Inter", "Roboto"}, nil)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	src.broken = true
	second := NewFontLoader(src, cache, Options{Logger: zerolog.Nop(), Dir: t.TempDir()})
	paths, err = second.Load(context.Background(), []string{"Inter"}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(paths["Inter"])
	require.NoError(t, err)
	assert.Equal(t, "ttf-Inter", string(data))
	assert.Equal(t, 1, src.fonts["Inter"])

	report := second.Cleanup(paths)
	assert.Equal(t, 1, report.Removed)
}

func TestFontLoader_FailureNamesFamily(t *testing.T) {
	src := newFakeSource()
	src.broken = true
	f := NewFontLoader(src, nil, Options{Logger: zerolog.Nop(), Dir: t.TempDir()})

	_, err := f.Load(context.Background(), []string{"Comic"}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"Comic"}, FailedKeys(err))
	assert.Contains(t, err.Error(), "font")
}

func TestWorkspace(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "export")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ws.Path("x"), []byte("1"), 0644))
	require.NoError(t, ws.Remove())

	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}
