package cas_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/core/domain"
)

func record(key, image string) domain.LayerRecord {
	return domain.LayerRecord{
		Key:       key,
		Stage:     "resolve",
		ImageID:   image,
		Parent:    "sha256:parent",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	store, err := cas.NewStore(filepath.Join(t.TempDir(), "layers.json"))
	require.NoError(t, err)

	got, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Put(record("k1", "sha256:aaa")))

	got, err = store.Get("k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sha256:aaa", got.ImageID)
	assert.Equal(t, "resolve", got.Stage)
}

func TestStore_PutKeepsSameImageRecord(t *testing.T) {
	store, err := cas.NewStore(filepath.Join(t.TempDir(), "layers.json"))
	require.NoError(t, err)

	first := record("k1", "sha256:aaa")
	require.NoError(t, store.Put(first))

	again := record("k1", "sha256:aaa")
	again.Timestamp = first.Timestamp.Add(time.Hour)
	require.NoError(t, store.Put(again))

	got, err := store.Get("k1")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(first.Timestamp))
}

func TestStore_PutReplacesRebuiltImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	store, err := cas.NewStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Put(record("k1", "sha256:pruned")))
	require.NoError(t, store.Put(record("k1", "sha256:rebuilt")))

	got, err := store.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:rebuilt", got.ImageID)

	reopened, err := cas.NewStore(path)
	require.NoError(t, err)
	got, err = reopened.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:rebuilt", got.ImageID)
}

func TestStore_PutKeepsRebuildFromOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")

	first, err := cas.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(record("k1", "sha256:old")))

	second, err := cas.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, second.Put(record("k1", "sha256:new")))

	require.NoError(t, first.Put(record("k2", "sha256:bbb")))

	reopened, err := cas.NewStore(path)
	require.NoError(t, err)
	got, err := reopened.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:new", got.ImageID)
	assert.Equal(t, 2, reopened.Len())
}

func TestStore_PutRequiresKey(t *testing.T) {
	store, err := cas.NewStore(filepath.Join(t.TempDir(), "layers.json"))
	require.NoError(t, err)

	err = store.Put(record("", "sha256:aaa"))
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)
}

func TestStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "layers.json")

	store, err := cas.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(record("k1", "sha256:aaa")))

	reopened, err := cas.NewStore(path)
	require.NoError(t, err)

	got, err := reopened.Get("k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sha256:aaa", got.ImageID)
	assert.True(t, got.Timestamp.Equal(record("", "").Timestamp))
}

func TestStore_MergesConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")

	first, err := cas.NewStore(path)
	require.NoError(t, err)
	second, err := cas.NewStore(path)
	require.NoError(t, err)

	require.NoError(t, first.Put(record("k1", "sha256:aaa")))
	require.NoError(t, second.Put(record("k2", "sha256:bbb")))

	reopened, err := cas.NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

func TestStore_ConcurrentPuts(t *testing.T) {
	store, err := cas.NewStore(filepath.Join(t.TempDir(), "layers.json"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Go(func() {
			assert.NoError(t, store.Put(record(key, "sha256:"+key)))
		})
	}
	wg.Wait()

	assert.Equal(t, 8, store.Len())
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	store, err := cas.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(record("k1", "sha256:aaa")))

	require.NoError(t, store.Clear())
	assert.Equal(t, 0, store.Len())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an empty cache is not an error.
	require.NoError(t, store.Clear())
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := cas.NewStore(path)
	require.ErrorIs(t, err, domain.ErrStoreReadFailed)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "layers.json", filepath.Base(cas.DefaultPath()))
	assert.Equal(t, "kiln", filepath.Base(filepath.Dir(cas.DefaultPath())))
}
