package offline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	// universal property 1
	store := openTestStore(t)

	modified := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()
	etag := `"v1"`
	resp := Response{Data: []byte("hello world"), Modified: &modified, Etag: &etag}
	res := StyleResource("http://h/style.json")

	store.Put(res, resp)
	got := store.Get(res)
	require.NotNil(t, got)
	assert.True(t, resp.Equal(*got))
}

func TestStoreRoundTripTile(t *testing.T) {
	store := openTestStore(t)

	res := TileResource("http://h/{z}/{x}/{y}.pbf", 1, 10, 163, 395)
	resp := Response{Data: []byte{1, 2, 3}}

	store.Put(res, resp)
	got := store.Get(res)
	require.NotNil(t, got)
	assert.True(t, resp.Equal(*got))
}

func TestStoreDoesNotCacheTransientErrors(t *testing.T) {
	// universal property 2
	store := openTestStore(t)
	res := StyleResource("http://h/style.json")

	store.Put(res, Response{Error: &ResponseError{Reason: ErrorConnection}})
	assert.Nil(t, store.Get(res))

	store.Put(res, Response{Error: &ResponseError{Reason: ErrorServer}})
	assert.Nil(t, store.Get(res))
}

func TestStoreNegativeCache(t *testing.T) {
	// universal property 3
	store := openTestStore(t)
	res := SourceResource("http://h/missing.json")

	store.Put(res, Response{Error: &ResponseError{Reason: ErrorNotFound, Message: "404"}})

	got := store.Get(res)
	require.NotNil(t, got)
	assert.Nil(t, got.Data)
	require.NotNil(t, got.Error)
	assert.Equal(t, ErrorNotFound, got.Error.Reason)
}

func TestStoreGetMissReturnsNil(t *testing.T) {
	store := openTestStore(t)
	assert.Nil(t, store.Get(StyleResource("http://h/never-put.json")))
}

func TestStorePutReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	res := StyleResource("http://h/style.json")

	store.Put(res, Response{Data: []byte("v1")})
	store.Put(res, Response{Data: []byte("v2")})

	got := store.Get(res)
	require.NotNil(t, got)
	assert.Equal(t, []byte("v2"), got.Data)
}

func TestStoreRegionResourceAssociation(t *testing.T) {
	store := openTestStore(t)
	regionID, err := store.CreateRegion([]byte("def"), []byte("meta"))
	require.NoError(t, err)

	res := StyleResource("http://h/style.json")
	assert.Nil(t, store.GetRegionResource(regionID, res))

	store.PutRegionResource(regionID, res, Response{Data: []byte("style-bytes")})
	got := store.GetRegionResource(regionID, res)
	require.NotNil(t, got)
	assert.Equal(t, []byte("style-bytes"), got.Data)
}

func TestStoreRegionRoundTripAndDelete(t *testing.T) {
	// universal property 5 (store-level half; region_test.go covers the decoded half)
	store := openTestStore(t)

	id, err := store.CreateRegion([]byte("def"), []byte("meta"))
	require.NoError(t, err)

	rows, err := store.ListRegions()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, []byte("def"), rows[0].Definition)
	assert.Equal(t, []byte("meta"), rows[0].Metadata)

	require.NoError(t, store.DeleteRegion(id))

	rows, err = store.ListRegions()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStoreSchemaSelfRepair(t *testing.T) {
	// universal property 4, using a temp file so we can reopen with a
	// deliberately wrong user_version.
	dir := t.TempDir()
	path := dir + "/offline.db"

	store, err := OpenStore(path)
	require.NoError(t, err)
	store.Put(StyleResource("http://h/style.json"), Response{Data: []byte("x")})
	require.NoError(t, store.Close())

	db2, err := openAndCheckSchema(path, logging.GetModuleLogger("test"))
	require.NoError(t, err)
	_, err = db2.Exec("PRAGMA user_version = 999")
	require.NoError(t, err)
	db2.Close()

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	// The recreated database must be fresh: the earlier put is gone.
	assert.Nil(t, reopened.Get(StyleResource("http://h/style.json")))
}
