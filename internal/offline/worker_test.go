package offline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	w := NewWorker(store, newStubFileSource(), NewAssetFileSource(t.TempDir()))
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWorkerCreateListDeleteRegion(t *testing.T) {
	w := newTestWorker(t)

	def := OfflineRegionDefinition{StyleURL: "http://h/style.json", Bounds: WorldBounds()}

	created := make(chan OfflineRegion, 1)
	w.CreateRegion(def, OfflineRegionMetadata(`{"name":"test"}`), func(r OfflineRegion, err error) {
		require.NoError(t, err)
		created <- r
	})
	region := <-created
	assert.NotZero(t, region.ID)

	listed := make(chan []OfflineRegion, 1)
	w.ListRegions(func(rs []OfflineRegion, err error) {
		require.NoError(t, err)
		listed <- rs
	})
	regions := <-listed
	require.Len(t, regions, 1)
	assert.Equal(t, region.ID, regions[0].ID)

	deleted := make(chan error, 1)
	w.DeleteRegion(region.ID, func(err error) { deleted <- err })
	require.NoError(t, <-deleted)

	listed2 := make(chan []OfflineRegion, 1)
	w.ListRegions(func(rs []OfflineRegion, err error) {
		require.NoError(t, err)
		listed2 <- rs
	})
	assert.Empty(t, <-listed2)
}

func TestWorkerRegionStatusThroughActivation(t *testing.T) {
	stub := newStubFileSource()
	stub.set("http://h/style.json", Response{Data: []byte("{}")})

	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	w := NewWorker(store, stub, NewAssetFileSource(t.TempDir()))
	t.Cleanup(func() { w.Close() })

	def := OfflineRegionDefinition{StyleURL: "http://h/style.json", Bounds: WorldBounds()}
	created := make(chan OfflineRegion, 1)
	w.CreateRegion(def, nil, func(r OfflineRegion, err error) {
		require.NoError(t, err)
		created <- r
	})
	region := <-created

	w.SetRegionDownloadState(region.ID, StateActive)

	deadline := time.After(time.Second)
	for {
		statusCh := make(chan OfflineRegionStatus, 1)
		w.GetRegionStatus(region.ID, func(s OfflineRegionStatus, err error) {
			require.NoError(t, err)
			statusCh <- s
		})
		status := <-statusCh
		if status.Complete() && status.DownloadState == StateActive {
			assert.EqualValues(t, 1, status.CompletedResourceCount)
			return
		}
		select {
		case <-deadline:
			t.Fatal("region never completed")
		default:
		}
	}
}

func TestWorkerGetPutRoundTrip(t *testing.T) {
	w := newTestWorker(t)

	res := StyleResource("http://h/style.json")
	resp := Response{Data: []byte("payload")}
	w.Put(res, resp)

	got := make(chan *Response, 1)
	w.Get(res, func(r *Response) { got <- r })
	fetched := <-got
	require.NotNil(t, fetched)
	assert.Equal(t, resp.Data, fetched.Data)
}

func TestWorkerPostPreservesFIFOOrder(t *testing.T) {
	w := newTestWorker(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		w.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, order[i])
	}
}
