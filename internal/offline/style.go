package offline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// styleSourceType mirrors the handful of source "type" values the
// activation algorithm (spec.md §4.3) cares about; anything else is a kind
// of source the core doesn't enumerate tiles for.
type styleSourceType string

const (
	styleSourceVector    styleSourceType = "vector"
	styleSourceRaster    styleSourceType = "raster"
	styleSourceRasterDEM styleSourceType = "raster-dem"
	styleSourceGeoJSON   styleSourceType = "geojson"
	styleSourceVideo     styleSourceType = "video"
	styleSourceImage     styleSourceType = "image"
)

func (t styleSourceType) toSourceType() SourceType {
	switch t {
	case styleSourceVector:
		return SourceVector
	case styleSourceRaster:
		return SourceRaster
	case styleSourceRasterDEM:
		return SourceRasterDEM
	case styleSourceGeoJSON:
		return SourceGeoJSON
	case styleSourceVideo, styleSourceImage:
		return SourceVideo
	default:
		return SourceUnknown
	}
}

// ignoredForTiles reports sources the activation algorithm walks past
// without enumerating anything (spec.md §4.3: "video and annotation
// sources are ignored").
func (t styleSourceType) ignoredForTiles() bool {
	return t == styleSourceVideo || t == styleSourceImage
}

// styleSource is one entry of a style document's "sources" map.
type styleSource struct {
	Type     styleSourceType `json:"type"`
	URL      string          `json:"url"`
	Tiles    []string        `json:"tiles"`
	MinZoom  *float64        `json:"minzoom"`
	MaxZoom  *float64        `json:"maxzoom"`
	TileSize int             `json:"tileSize"`
}

func (s styleSource) inline() bool {
	return len(s.Tiles) > 0
}

func (s styleSource) sourceInfo() SourceInfo {
	tileSize := s.TileSize
	if tileSize == 0 {
		tileSize = 512
	}
	return SourceInfo{Tiles: s.Tiles, MinZoom: s.MinZoom, MaxZoom: s.MaxZoom, TileSize: tileSize}
}

// styleLayer is the subset of a layer document needed to recover glyph
// font-stack references: "layout": {"text-font": [...]}.
type styleLayer struct {
	Layout struct {
		TextFont []string `json:"text-font"`
	} `json:"layout"`
}

// style is the subset of a style document the sub-resource enumeration
// algorithm reads: sprite/glyph base URLs, the source map, and each layer's
// text-font reference. Paint properties and every other style feature are
// out of scope (spec.md §1).
type style struct {
	Sprite  string                 `json:"sprite"`
	Glyphs  string                 `json:"glyphs"`
	Sources map[string]styleSource `json:"sources"`
	Layers  []styleLayer           `json:"layers"`
}

func parseStyle(data []byte) (style, error) {
	var s style
	if err := json.Unmarshal(data, &s); err != nil {
		return style{}, fmt.Errorf("parsing style document: %w", err)
	}
	return s, nil
}

// fontStacks returns the distinct font-stack strings referenced across the
// style's layers, each joined the way the style spec joins a stack's font
// names: with ",". The download coordinator enumerates 256 glyph ranges for
// each distinct stack.
func (s style) fontStacks() []string {
	seen := make(map[string]bool)
	var stacks []string
	for _, layer := range s.Layers {
		if len(layer.Layout.TextFont) == 0 {
			continue
		}
		stack := strings.Join(layer.Layout.TextFont, ",")
		if !seen[stack] {
			seen[stack] = true
			stacks = append(stacks, stack)
		}
	}
	return stacks
}

// tileJSON is the subset of a TileJSON document the core reads when a tile
// source references a URL instead of inlining its SourceInfo.
type tileJSON struct {
	Tiles   []string `json:"tiles"`
	MinZoom *float64 `json:"minzoom"`
	MaxZoom *float64 `json:"maxzoom"`
}

func parseTileJSON(data []byte) (SourceInfo, error) {
	var t tileJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return SourceInfo{}, fmt.Errorf("parsing TileJSON: %w", err)
	}
	return SourceInfo{Tiles: t.Tiles, MinZoom: t.MinZoom, MaxZoom: t.MaxZoom, TileSize: 512}, nil
}

// glyphRangeURL substitutes {fontstack} and {range} into a glyph URL
// template, matching the style spec's glyph URL grammar. Ranges are
// 0-255, 256-511, ... per spec.md §4.3.
func glyphRangeURL(template, fontStack string, rangeIndex int) string {
	lo := rangeIndex * 256
	hi := lo + 255
	r := strings.NewReplacer(
		"{fontstack}", fontStack,
		"{range}", fmt.Sprintf("%d-%d", lo, hi),
	)
	return r.Replace(template)
}

// spriteURLs builds the image and JSON sprite resource URLs for a base
// sprite URL, scaled by pixelRatio the way the style spec does (a "@2x"
// suffix for any ratio above 1, no suffix otherwise).
func spriteURLs(base string, pixelRatio float32) (image, json string) {
	suffix := ""
	if pixelRatio > 1 {
		suffix = "@2x"
	}
	return base + suffix + ".png", base + suffix + ".json"
}

// tileURL substitutes {z}/{x}/{y} into a tile URL template.
func tileURL(template string, z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", z),
		"{x}", fmt.Sprintf("%d", x),
		"{y}", fmt.Sprintf("%d", y),
	)
	return r.Replace(template)
}
