package offline

import (
	"strings"
	"sync/atomic"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

// Client is the top-level entry point: URL dispatch between the asset and
// online sources, offline-first request handling with online revalidation,
// and every region operation, all funneled through a single Worker (spec.md
// §4.4, §5).
type Client struct {
	worker *Worker
	online *OnlineFileSource
	asset  *AssetFileSource
	log    *logging.Logger

	forcedOffline atomic.Bool
}

// NewClient wires a Client over storePath (a file path, or ":memory:" for an
// ephemeral store), reading bundled assets from assetRoot and issuing
// network requests through online.
func NewClient(storePath, assetRoot string, online *OnlineFileSource) (*Client, error) {
	store, err := OpenStore(storePath)
	if err != nil {
		return nil, err
	}
	asset := NewAssetFileSource(assetRoot)
	c := &Client{
		worker: NewWorker(store, online, asset),
		online: online,
		asset:  asset,
		log:    logging.GetModuleLogger("offline").Module("facade"),
	}
	return c, nil
}

// Close stops the database worker and closes the underlying store.
func (c *Client) Close() error {
	return c.worker.Close()
}

// Request implements the offline-first lookup + online revalidation flow
// (spec.md §4.4). asset:// URLs are answered synchronously from the asset
// source and never touch the cache. Networkable URLs are looked up in the
// cache first; the cached hit (if any) is always delivered to callback, but
// only after an online revalidation request has been scheduled, because the
// revalidation's own arrival may cancel the handle this call returns
// (matching the original's "schedule online before delivering the cached
// hit" ordering).
func (c *Client) Request(resource Resource, callback func(Response)) *Handle {
	if strings.HasPrefix(resource.URL, assetScheme) {
		return c.asset.Request(resource, callback)
	}

	h := newHandle()
	c.worker.Get(resource, func(hit *Response) {
		if h.Cancelled() {
			return
		}

		revalidated := resource
		if hit != nil {
			revalidated.PriorModified = hit.Modified
			revalidated.PriorExpires = hit.Expires
			revalidated.PriorEtag = hit.Etag
		}

		if !c.forcedOffline.Load() {
			c.online.Request(revalidated, func(resp Response) {
				if h.Cancelled() {
					return
				}
				c.worker.Put(revalidated, resp)
				callback(resp)
			})
		}

		if hit != nil && !h.Cancelled() {
			callback(*hit)
		}
	})
	return h
}

// Put writes resp into the cache for resource, fire-and-forget.
func (c *Client) Put(resource Resource, resp Response) {
	c.worker.Put(resource, resp)
}

// GoOffline switches the client into forced-offline mode: subsequent
// requests are answered from the cache only and never reach the online
// source.
func (c *Client) GoOffline() {
	c.forcedOffline.Store(true)
}

// SetAccessToken stores token on the online source, where GetAccessToken
// reads it back. The online source does not add it to requests.
func (c *Client) SetAccessToken(token string) {
	c.online.SetAccessToken(token)
}

// GetAccessToken returns the currently configured token.
func (c *Client) GetAccessToken() string {
	return c.online.AccessToken()
}

// ListOfflineRegions enumerates every persisted region.
func (c *Client) ListOfflineRegions(cb func([]OfflineRegion, error)) {
	c.worker.ListRegions(cb)
}

// CreateOfflineRegion persists a new region and returns it with its
// assigned id.
func (c *Client) CreateOfflineRegion(definition OfflineRegionDefinition, metadata OfflineRegionMetadata, cb func(OfflineRegion, error)) {
	c.worker.CreateRegion(definition, metadata, cb)
}

// DeleteOfflineRegion tears down the region's coordinator (cancelling any
// in-flight requests) and removes its persisted state.
func (c *Client) DeleteOfflineRegion(id int64, cb func(error)) {
	c.worker.DeleteRegion(id, cb)
}

// SetOfflineRegionObserver installs obs as the sink for the region's status
// and error notifications.
func (c *Client) SetOfflineRegionObserver(id int64, obs Observer) {
	c.worker.SetRegionObserver(id, obs)
}

// SetOfflineRegionDownloadState transitions the region between Active and
// Inactive.
func (c *Client) SetOfflineRegionDownloadState(id int64, state DownloadState) {
	c.worker.SetRegionDownloadState(id, state)
}

// GetOfflineRegionStatus reads the region's current download counters.
func (c *Client) GetOfflineRegionStatus(id int64, cb func(OfflineRegionStatus, error)) {
	c.worker.GetRegionStatus(id, cb)
}
