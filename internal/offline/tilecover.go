package offline

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// mercatorLatLimit is the maximum latitude representable in Web Mercator
// (±85.0511287798066°); bounds entirely outside this band cover no tiles.
const mercatorLatLimit = 85.0511287798066

// LatLng is a geographic point in WGS84 degrees.
type LatLng struct {
	Lat, Lon float64
}

// LatLngBounds is an axis-aligned geographic bounding box.
type LatLngBounds struct {
	South, West, North, East float64
}

// WorldBounds returns the bounds covering the entire globe.
func WorldBounds() LatLngBounds {
	return LatLngBounds{South: -90, West: -180, North: 90, East: 180}
}

// HullBounds returns the smallest bounds containing both corner points.
func HullBounds(a, b LatLng) LatLngBounds {
	south, north := a.Lat, b.Lat
	if south > north {
		south, north = north, south
	}
	west, east := a.Lon, b.Lon
	if west > east {
		west, east = east, west
	}
	return LatLngBounds{South: south, West: west, North: north, East: east}
}

// EmptyBounds returns the canonical empty bounds sentinel.
func EmptyBounds() LatLngBounds {
	return LatLngBounds{South: 1, West: 1, North: -1, East: -1}
}

// IsEmpty reports whether the bounds contain no points.
func (b LatLngBounds) IsEmpty() bool {
	return b.South > b.North || b.West > b.East
}

func outsideMercatorBand(b LatLngBounds) bool {
	return b.South > mercatorLatLimit || b.North < -mercatorLatLimit
}

// TileID is one (z, x, y) tile coordinate, plus the number of full
// 360-degree wraps applied to reach a canonical x in [0, 2^z).
type TileID struct {
	Z, X, Y, W int
}

// SourceType affects how a fractional zoom range rounds to integer zooms
// during offline tile cover.
type SourceType int

const (
	SourceUnknown SourceType = iota
	SourceVector
	SourceRaster
	SourceRasterDEM
	SourceGeoJSON
	SourceVideo
	SourceAnnotations
)

// SourceInfo describes the subset of a tile source's TileJSON the core reads.
type SourceInfo struct {
	Tiles    []string
	MinZoom  *float64
	MaxZoom  *float64
	TileSize int
}

// Cover computes the generic tile covering of bounds over an integer zoom
// range, without any source-specific rounding or zoom-range intersection.
func Cover(bounds LatLngBounds, minZ, maxZ int) []TileID {
	if bounds.IsEmpty() || outsideMercatorBand(bounds) {
		return nil
	}
	var out []TileID
	for z := minZ; z <= maxZ; z++ {
		out = append(out, projectZoom(bounds, z)...)
	}
	return out
}

// OfflineCover computes the tile covering used by the region download
// coordinator: it first narrows [minZ, maxZ] to the effective integer zoom
// range for the given source type, tile size, and source info, then covers
// each zoom exactly as Cover does.
func OfflineCover(bounds LatLngBounds, minZ, maxZ float64, sourceType SourceType, tileSize int, info SourceInfo) []TileID {
	if bounds.IsEmpty() || outsideMercatorBand(bounds) {
		return nil
	}
	z0, z1, ok := effectiveZoomRange(minZ, maxZ, sourceType, tileSize, info)
	if !ok {
		return nil
	}
	var out []TileID
	for z := z0; z <= z1; z++ {
		out = append(out, projectZoom(bounds, z)...)
	}
	return out
}

// maxPracticalZoom bounds an infinite maxZoom when the source itself
// declares no maxZoom either.
const maxPracticalZoom = 22

func effectiveZoomRange(minZ, maxZ float64, sourceType SourceType, tileSize int, info SourceInfo) (int, int, bool) {
	var z0, z1 int
	if sourceType == SourceRaster {
		z0 = int(math.Round(minZ))
		if math.IsInf(maxZ, 1) {
			z1 = maxPracticalZoom
		} else {
			z1 = int(math.Round(maxZ))
		}
	} else {
		z0 = int(math.Floor(minZ))
		if math.IsInf(maxZ, 1) {
			z1 = maxPracticalZoom
		} else {
			z1 = int(math.Floor(maxZ))
		}
	}

	if tileSize == 256 {
		z0++
		z1++
	}

	if info.MinZoom != nil {
		if lo := int(math.Ceil(*info.MinZoom)); lo > z0 {
			z0 = lo
		}
	}
	if info.MaxZoom != nil {
		if hi := int(math.Floor(*info.MaxZoom)); hi < z1 {
			z1 = hi
		}
	}
	if z0 < 0 {
		z0 = 0
	}
	if z1 < z0 {
		return 0, 0, false
	}
	return z0, z1, true
}

// projectZoom covers bounds at exactly one integer zoom, using
// paulmach/orb/maptile for the canonical Web Mercator projection and adding
// the wrap-count bookkeeping maptile itself doesn't model.
func projectZoom(bounds LatLngBounds, z int) []TileID {
	zoom := maptile.Zoom(uint32(z))

	south := clampLat(bounds.South)
	north := clampLat(bounds.North)

	west, _ := wrapLongitude(bounds.West)
	east, wrapCount := wrapLongitude(bounds.East)

	// The east/north edge of a bounding box is exclusive of the next tile:
	// a box touching exactly +180 degrees belongs to the last column, not
	// a wrapped-around first column.
	if east >= 180.0 {
		east = 180.0 - 1e-9
	}

	sw := maptile.At(orb.Point{west, south}, zoom)
	ne := maptile.At(orb.Point{east, north}, zoom)

	minX, maxX := sw.X, ne.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := ne.Y, sw.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	tiles := make([]TileID, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, TileID{Z: z, X: int(x), Y: int(y), W: wrapCount})
		}
	}
	return tiles
}

func clampLat(lat float64) float64 {
	if lat > mercatorLatLimit {
		return mercatorLatLimit
	}
	if lat < -mercatorLatLimit {
		return -mercatorLatLimit
	}
	return lat
}

// wrapLongitude folds lon into [-180, 180] and reports how many full
// 360-degree wraps were applied to get there.
func wrapLongitude(lon float64) (wrapped float64, wraps int) {
	wrapped = lon
	for wrapped > 180 {
		wrapped -= 360
		wraps++
	}
	for wrapped < -180 {
		wrapped += 360
		wraps--
	}
	return wrapped, wraps
}
