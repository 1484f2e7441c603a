package offline

import (
	"fmt"
	"sync"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

// job is one message posted to the worker. run executes on the worker
// goroutine; if the caller wants a result, run is expected to deliver it
// through its own closure (see Worker.Post/PostWithCallback).
type job struct {
	run func()
}

// Worker is the single dedicated goroutine that owns the cache store, the
// region registry, and every live download Coordinator (spec.md §5). The
// embedded SQL engine and every Coordinator are touched only from the
// goroutine Worker.Run starts; every other method is safe to call from any
// goroutine and only ever enqueues work.
//
// Ordering: jobs run in the order Post/PostWithCallback was called,
// matching the FIFO-per-caller guarantee spec.md §5 requires. There is
// no ordering guarantee across distinct callers, which a single shared
// channel naturally already provides (two concurrent senders race on send
// order, same as two concurrent mbgl callers racing on which message the
// run loop's queue receives first).
type Worker struct {
	store    *Store
	registry *Registry

	jobs chan job
	done chan struct{}
	wg   sync.WaitGroup
	log  *logging.Logger

	coordinators map[int64]*Coordinator
	online       FileSource
	asset        FileSource
}

// NewWorker constructs a worker over an already-open store, using online
// and asset as the external collaborators every Coordinator dispatches
// requests through.
func NewWorker(store *Store, online, asset FileSource) *Worker {
	w := &Worker{
		store:        store,
		registry:     NewRegistry(store),
		jobs:         make(chan job, 64),
		done:         make(chan struct{}),
		log:          logging.GetModuleLogger("offline").Module("worker"),
		coordinators: make(map[int64]*Coordinator),
		online:       online,
		asset:        asset,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.jobs:
			j.run()
		case <-w.done:
			// Drain anything already queued before exiting, so a Close
			// racing with a fire-and-forget Post doesn't silently drop it.
			for {
				select {
				case j := <-w.jobs:
					j.run()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn as fire-and-forget; the worker executes it and discards
// any result.
func (w *Worker) Post(fn func()) {
	w.jobs <- job{run: fn}
}

// PostWithCallback enqueues fn, then invokes cb with fn's result once the
// worker has run it. cb runs on the worker goroutine, matching the
// "completion callbacks are enqueued back on the caller's run loop"
// contract loosely — callers that need a different thread must trampoline
// themselves, exactly as region Observers must (spec.md §5).
func PostWithCallback[T any](w *Worker, fn func() T, cb func(T)) {
	w.Post(func() {
		cb(fn())
	})
}

// Close tells the worker goroutine to run every job already queued and
// exit, waits for it, then closes the store. Post does not refuse work after
// Close; such jobs are never run.
func (w *Worker) Close() error {
	close(w.done)
	w.wg.Wait()
	return w.store.Close()
}

// coordinatorFor returns the Coordinator for id, lazily constructing it the
// first time a region is touched after the worker starts. Must only be
// called from the worker goroutine.
func (w *Worker) coordinatorFor(id int64) (*Coordinator, error) {
	if c, ok := w.coordinators[id]; ok {
		return c, nil
	}
	regions, err := w.registry.ListRegions()
	if err != nil {
		return nil, err
	}
	for _, r := range regions {
		if r.ID == id {
			c := NewCoordinator(r, w.store, w.online, w.asset, w.Post)
			w.coordinators[id] = c
			return c, nil
		}
	}
	return nil, fmt.Errorf("offline: no such region %d", id)
}

// CreateRegion posts a createRegion request to the worker and returns the
// new region once it completes.
func (w *Worker) CreateRegion(def OfflineRegionDefinition, metadata OfflineRegionMetadata, cb func(OfflineRegion, error)) {
	w.Post(func() {
		region, err := w.registry.CreateRegion(def, metadata)
		cb(region, err)
	})
}

// ListRegions posts a listRegions request to the worker.
func (w *Worker) ListRegions(cb func([]OfflineRegion, error)) {
	w.Post(func() {
		cb(w.registry.ListRegions())
	})
}

// DeleteRegion tears down the region's coordinator (if any), cancelling its
// in-flight requests, then removes the region row.
func (w *Worker) DeleteRegion(id int64, cb func(error)) {
	w.Post(func() {
		if c, ok := w.coordinators[id]; ok {
			c.SetState(StateInactive)
			delete(w.coordinators, id)
		}
		cb(w.registry.DeleteRegion(id))
	})
}

// SetRegionObserver installs obs on the region's coordinator, constructing
// it if this is the first operation touching that region.
func (w *Worker) SetRegionObserver(id int64, obs Observer) {
	w.Post(func() {
		c, err := w.coordinatorFor(id)
		if err != nil {
			w.log.Error("set observer for region %d: %v", id, err)
			return
		}
		c.SetObserver(obs)
	})
}

// SetRegionDownloadState transitions the region's coordinator.
func (w *Worker) SetRegionDownloadState(id int64, state DownloadState) {
	w.Post(func() {
		c, err := w.coordinatorFor(id)
		if err != nil {
			w.log.Error("set download state for region %d: %v", id, err)
			return
		}
		c.SetState(state)
	})
}

// GetRegionStatus posts a status read to the worker.
func (w *Worker) GetRegionStatus(id int64, cb func(OfflineRegionStatus, error)) {
	w.Post(func() {
		c, err := w.coordinatorFor(id)
		if err != nil {
			cb(OfflineRegionStatus{}, err)
			return
		}
		cb(c.Status(), nil)
	})
}

// Get posts a cache lookup to the worker.
func (w *Worker) Get(r Resource, cb func(*Response)) {
	w.Post(func() {
		cb(w.store.Get(r))
	})
}

// Put posts a fire-and-forget cache write to the worker.
func (w *Worker) Put(r Resource, resp Response) {
	w.Post(func() {
		w.store.Put(r, resp)
	})
}
