package offline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

// DownloadState is the coordinator's public lifecycle state.
type DownloadState int

const (
	StateInactive DownloadState = iota
	StateActive
)

func (s DownloadState) String() string {
	if s == StateActive {
		return "Active"
	}
	return "Inactive"
}

// OfflineRegionStatus reports a region's download progress. Complete()
// becomes true once every discovered resource has completed; reaching it
// does not itself move the coordinator out of Active (spec.md §4.3).
type OfflineRegionStatus struct {
	DownloadState          DownloadState
	CompletedResourceCount uint64
	CompletedResourceSize  uint64
	RequiredResourceCount  uint64
}

// Complete reports whether every currently-known required resource has
// completed. RequiredResourceCount is a lower bound while the style is
// still being walked, so this can flip true, then false as new resources
// are discovered, then true again.
func (s OfflineRegionStatus) Complete() bool {
	return s.CompletedResourceCount == s.RequiredResourceCount
}

// ErrorValue is delivered to an Observer's Error method for a non-transient
// resource failure the online source surfaced.
type ErrorValue struct {
	Reason  ErrorReason
	Message string
}

// Observer is the region download coordinator's message sink. It is
// invoked synchronously on the database worker; implementations must
// trampoline to whatever thread they actually want to do work on
// (spec.md §5, §9).
type Observer interface {
	StatusChanged(OfflineRegionStatus)
	Error(ErrorValue)
}

// PostFunc runs fn on the database worker. The download coordinator uses it
// to bring FileSource callbacks — which may arrive on a goroutine the
// source itself spawned — back onto the single goroutine that owns the
// coordinator's state and the store.
type PostFunc func(fn func())

// Coordinator drives one region's download lifecycle: style walking,
// sub-resource enumeration, tile cover, request dispatch via ensure, and
// progress accounting. The Worker creates one Coordinator per region on the
// first operation that touches the region and keeps it until the region is
// deleted; all of its methods must only be called from the database worker
// goroutine.
type Coordinator struct {
	region OfflineRegion
	store  *Store
	online FileSource
	asset  FileSource
	post   PostFunc
	log    *logging.Logger

	state    DownloadState
	status   OfflineRegionStatus
	observer Observer
	handles  map[string]*Handle
}

// NewCoordinator constructs a coordinator for region, Inactive until
// SetState(StateActive) is called.
func NewCoordinator(region OfflineRegion, store *Store, online, asset FileSource, post PostFunc) *Coordinator {
	return &Coordinator{
		region:  region,
		store:   store,
		online:  online,
		asset:   asset,
		post:    post,
		log:     logging.GetModuleLogger("offline").Module("download"),
		handles: make(map[string]*Handle),
	}
}

// SetObserver installs the sink for status and error notifications.
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// Status returns the coordinator's current counters.
func (c *Coordinator) Status() OfflineRegionStatus {
	return c.status
}

// SetState transitions the coordinator. Moving into Active (from anything
// else) unconditionally re-runs activation — refetching and re-parsing the
// style — matching the original's behavior on reactivation (see
// DESIGN.md's Open Question decision). Moving to Inactive drops every
// in-flight request handle, cancelling the underlying requests.
func (c *Coordinator) SetState(state DownloadState) {
	wasActive := c.state == StateActive
	c.state = state
	c.status.DownloadState = state

	if state == StateActive && !wasActive {
		c.activate()
	}
	if state != StateActive {
		c.deactivate()
	}
	c.notify()
}

func (c *Coordinator) activate() {
	c.status = OfflineRegionStatus{DownloadState: StateActive}
	c.handles = make(map[string]*Handle)

	styleRes := StyleResource(c.region.Definition.StyleURL)
	c.ensure(styleRes, func(resp Response) {
		parsed, err := parseStyle(resp.Data)
		if err != nil {
			c.notifyError(ErrorOther, err.Error())
			return
		}
		c.walkStyle(parsed)
	})
}

func (c *Coordinator) deactivate() {
	for _, h := range c.handles {
		h.Cancel()
	}
	c.handles = make(map[string]*Handle)
}

func (c *Coordinator) walkStyle(s style) {
	if s.Sprite != "" {
		img, js := spriteURLs(s.Sprite, c.region.Definition.PixelRatio)
		c.ensure(SpriteImageResource(img), nil)
		c.ensure(SpriteJSONResource(js), nil)
	}

	if s.Glyphs != "" {
		for _, stack := range s.fontStacks() {
			for rangeIndex := 0; rangeIndex < 256; rangeIndex++ {
				c.ensure(GlyphsResource(glyphRangeURL(s.Glyphs, stack, rangeIndex)), nil)
			}
		}
	}

	for _, src := range s.Sources {
		c.walkSource(src)
	}
}

func (c *Coordinator) walkSource(src styleSource) {
	if src.Type.ignoredForTiles() {
		return
	}

	sourceType := src.Type.toSourceType()

	if src.inline() {
		c.ensureTiles(sourceType, src.sourceInfo())
		return
	}
	if src.URL == "" {
		return
	}

	res := SourceResource(src.URL)
	if sourceType == SourceGeoJSON {
		c.ensure(res, nil)
		return
	}

	c.ensure(res, func(resp Response) {
		info, err := parseTileJSON(resp.Data)
		if err != nil {
			c.notifyError(ErrorOther, err.Error())
			return
		}
		c.ensureTiles(sourceType, info)
	})
}

func (c *Coordinator) ensureTiles(sourceType SourceType, info SourceInfo) {
	if len(info.Tiles) == 0 {
		return
	}
	template := info.Tiles[0]
	tileSize := info.TileSize
	if tileSize == 0 {
		tileSize = 512
	}

	def := c.region.Definition
	for _, t := range OfflineCover(def.Bounds, def.MinZoom, def.MaxZoom, sourceType, tileSize, info) {
		url := tileURL(template, t.Z, t.X, t.Y)
		res := TileResource(template, int(def.PixelRatio), t.Z, t.X, t.Y)
		res.URL = url
		c.ensure(res, nil)
	}
}

// ensure is the central primitive of spec.md §4.3: increment and notify,
// try the region-scoped cache, and on a miss dispatch an online (or asset)
// request whose result is folded back in on the worker goroutine via
// c.post. continuation, if non-nil, receives the resolved Response — on a
// cache hit immediately, on a fetch once it completes successfully. A
// failed fetch is neither stored nor counted as completed, so the resource
// stays outstanding for the next activation cycle; an ErrorOther failure is
// also reported to the observer's Error method, every other reason is
// dropped silently.
func (c *Coordinator) ensure(resource Resource, continuation func(Response)) {
	c.status.RequiredResourceCount++
	c.notify()

	if hit := c.store.GetRegionResource(c.region.ID, resource); hit != nil {
		if continuation != nil {
			continuation(*hit)
		}
		c.complete(hit)
		return
	}

	handleID := uuid.NewString()
	handle := c.sourceFor(resource).Request(resource, func(resp Response) {
		c.post(func() {
			delete(c.handles, handleID)

			if resp.Error != nil {
				if resp.Error.Reason == ErrorOther {
					c.notifyErrorValue(*resp.Error)
				}
				return
			}

			c.store.PutRegionResource(c.region.ID, resource, resp)
			if continuation != nil {
				continuation(resp)
			}
			c.complete(&resp)
		})
	})
	c.handles[handleID] = handle
}

func (c *Coordinator) complete(resp *Response) {
	c.status.CompletedResourceCount++
	if resp != nil {
		c.status.CompletedResourceSize += uint64(len(resp.Data))
	}
	c.notify()
}

func (c *Coordinator) sourceFor(r Resource) FileSource {
	if strings.HasPrefix(r.URL, assetScheme) {
		return c.asset
	}
	return c.online
}

func (c *Coordinator) notify() {
	if c.observer != nil {
		c.observer.StatusChanged(c.status)
	}
}

func (c *Coordinator) notifyErrorValue(e ResponseError) {
	if c.observer != nil {
		c.observer.Error(ErrorValue{Reason: e.Reason, Message: e.Message})
	}
}

func (c *Coordinator) notifyError(reason ErrorReason, message string) {
	c.notifyErrorValue(ResponseError{Reason: reason, Message: message})
}
