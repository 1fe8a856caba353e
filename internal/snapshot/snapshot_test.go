package snapshot

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
)

func TestWithReplacesOneList(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	base := Snapshot{}.With(Installed, []string{"sys-libs/zlib-1.3"}, at)
	next := base.With(Available, []string{"dev-lang/go"}, at.Add(time.Minute))

	require.True(t, next.Loaded(Installed))
	require.True(t, next.Loaded(Available))
	require.False(t, next.Loaded(Updates))
	require.False(t, base.Loaded(Available), "With must not mutate the receiver")
	require.Equal(t, []string{"sys-libs/zlib-1.3"}, next.Items(Installed))
	require.Equal(t, []string{"dev-lang/go"}, next.Items(Available))
}

func TestWithIgnoresMismatchedPayload(t *testing.T) {
	t.Parallel()

	snap := Snapshot{}.With(Updates, []string{"not updates"}, time.Now())
	require.False(t, snap.Loaded(Updates))
	require.True(t, snap.Empty())

	updates := parsers.Updates{Atoms: []string{"a/b"}, Display: []string{"a/b (1) [Update]"}}
	snap = snap.With(Updates, updates, time.Now())
	require.Equal(t, []string{"a/b (1) [Update]"}, snap.Items(Updates))
}

func TestFrom(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Installed: []string{"x/y"}}
	require.Equal(t, snap, From(snap))
	require.Equal(t, snap, From(&snap))
	require.Equal(t, Snapshot{}, From(nil))
	require.Equal(t, Snapshot{}, From((*Snapshot)(nil)))
	require.Equal(t, Snapshot{}, From("other"))
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	empty, err := store.Load()
	require.NoError(t, err)
	require.True(t, empty.Empty())

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{}.
		With(Installed, []string{"sys-libs/zlib-1.3"}, at).
		With(Updates, parsers.Updates{
			Atoms:   []string{"app-misc/foo"},
			Display: []string{"app-misc/foo (1.2) [Update]"},
			Records: []parsers.Update{{Atom: "app-misc/foo", Version: "1.2", Flag: parsers.FlagUpdate}},
		}, at)
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Installed, loaded.Installed)
	assert.Equal(t, snap.Updates, loaded.Updates)
	assert.True(t, loaded.RefreshedAt[Installed].Equal(at))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".snapshot-", "temp files must not be left behind")
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	require.ErrorContains(t, err, "failed to parse snapshot")

	require.NoError(t, os.WriteFile(path, []byte(`{"version":"99"}`), 0o644))
	_, err = store.Load()
	require.ErrorContains(t, err, "unsupported snapshot version")
}

func TestStoreConcurrentSaves(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	first, err := NewStore(path)
	require.NoError(t, err)
	second, err := NewStore(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		store := first
		if i%2 == 1 {
			store = second
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := Snapshot{}.With(Available, []string{"cat/pkg"}, time.Unix(int64(i), 0))
			assert.NoError(t, store.Save(snap))
		}(i)
	}
	wg.Wait()

	loaded, err := first.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"cat/pkg"}, loaded.Available)
}

func TestNewStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewStore("")
	require.Error(t, err)
}
