package offline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// OfflineRegionDefinition is the (style URL, bounds, zoom range, pixel ratio)
// tuple that defines what a region's download coordinator must fetch.
// MaxZoom may be +Inf, meaning "up to whatever the source offers".
type OfflineRegionDefinition struct {
	StyleURL   string
	Bounds     LatLngBounds
	MinZoom    float64
	MaxZoom    float64
	PixelRatio float32
}

type offlineRegionDefinitionJSON struct {
	StyleURL   string       `json:"styleUrl"`
	Bounds     LatLngBounds `json:"bounds"`
	MinZoom    float64      `json:"minZoom"`
	MaxZoom    string       `json:"maxZoom"`
	PixelRatio float32      `json:"pixelRatio"`
}

// MarshalJSON encodes MaxZoom as the literal string "Infinity" when it is
// positive infinity, since JSON has no native representation for it.
func (d OfflineRegionDefinition) MarshalJSON() ([]byte, error) {
	maxZoom := strconv.FormatFloat(d.MaxZoom, 'g', -1, 64)
	if math.IsInf(d.MaxZoom, 1) {
		maxZoom = "Infinity"
	}
	return json.Marshal(offlineRegionDefinitionJSON{
		StyleURL:   d.StyleURL,
		Bounds:     d.Bounds,
		MinZoom:    d.MinZoom,
		MaxZoom:    maxZoom,
		PixelRatio: d.PixelRatio,
	})
}

func (d *OfflineRegionDefinition) UnmarshalJSON(b []byte) error {
	var dto offlineRegionDefinitionJSON
	if err := json.Unmarshal(b, &dto); err != nil {
		return err
	}
	d.StyleURL = dto.StyleURL
	d.Bounds = dto.Bounds
	d.MinZoom = dto.MinZoom
	d.PixelRatio = dto.PixelRatio
	if dto.MaxZoom == "Infinity" {
		d.MaxZoom = math.Inf(1)
		return nil
	}
	v, err := strconv.ParseFloat(dto.MaxZoom, 64)
	if err != nil {
		return fmt.Errorf("decoding region maxZoom: %w", err)
	}
	d.MaxZoom = v
	return nil
}

// OfflineRegionMetadata is an opaque byte sequence; the core performs no
// interpretation of it, preserving portability across applications.
type OfflineRegionMetadata []byte

// OfflineRegion is exclusively owned after creation: the only valid way to
// operate on it is by id, through the Registry that created it. Deleting a
// region invalidates its id for every future operation.
type OfflineRegion struct {
	ID         int64
	Definition OfflineRegionDefinition
	Metadata   OfflineRegionMetadata
}

// Registry is the persistent region table: create/list/delete plus the
// resource association bookkeeping (Store.GetRegionResource/PutRegionResource)
// that the download coordinator relies on.
type Registry struct {
	store *Store
}

// NewRegistry wraps store with region-table operations.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store}
}

// CreateRegion encodes definition into the store's opaque definition blob,
// inserts a new row, and returns the region with its freshly assigned id.
func (r *Registry) CreateRegion(definition OfflineRegionDefinition, metadata OfflineRegionMetadata) (OfflineRegion, error) {
	blob, err := json.Marshal(definition)
	if err != nil {
		return OfflineRegion{}, fmt.Errorf("encoding region definition: %w", err)
	}
	id, err := r.store.CreateRegion(blob, metadata)
	if err != nil {
		return OfflineRegion{}, fmt.Errorf("creating region: %w", err)
	}
	return OfflineRegion{ID: id, Definition: definition, Metadata: metadata}, nil
}

// ListRegions enumerates all regions, decoding their definition blobs.
func (r *Registry) ListRegions() ([]OfflineRegion, error) {
	rows, err := r.store.ListRegions()
	if err != nil {
		return nil, fmt.Errorf("listing regions: %w", err)
	}
	out := make([]OfflineRegion, 0, len(rows))
	for _, row := range rows {
		var def OfflineRegionDefinition
		if err := json.Unmarshal(row.Definition, &def); err != nil {
			return nil, fmt.Errorf("decoding region %d definition: %w", row.ID, err)
		}
		out = append(out, OfflineRegion{ID: row.ID, Definition: def, Metadata: row.Metadata})
	}
	return out, nil
}

// DeleteRegion removes the region row and its association rows. It does not
// garbage-collect resource/tile rows that become unreferenced as a result
// (retention policy; see DESIGN.md). Callers are responsible for tearing
// down any live download coordinator for id before calling this.
func (r *Registry) DeleteRegion(id int64) error {
	if err := r.store.DeleteRegion(id); err != nil {
		return fmt.Errorf("deleting region %d: %w", id, err)
	}
	return nil
}
