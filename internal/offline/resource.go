// Package offline implements the persistent resource cache and region
// downloader used to make a subset of a map style available without a
// network connection.
package offline

import "time"

// Kind identifies what a Resource represents, for both cache-key purposes
// and for the download coordinator's sub-resource enumeration.
type Kind int

const (
	KindUnknown Kind = iota
	KindStyle
	KindSource
	KindTile
	KindGlyphs
	KindSpriteImage
	KindSpriteJSON
)

func (k Kind) String() string {
	switch k {
	case KindStyle:
		return "Style"
	case KindSource:
		return "Source"
	case KindTile:
		return "Tile"
	case KindGlyphs:
		return "Glyphs"
	case KindSpriteImage:
		return "SpriteImage"
	case KindSpriteJSON:
		return "SpriteJSON"
	default:
		return "Unknown"
	}
}

// TileCoord identifies one tile within a templated tile source. It is only
// meaningful when attached to a Resource of KindTile.
type TileCoord struct {
	URLTemplate string
	PixelRatio  int
	X, Y, Z     int
}

// Resource identifies one cacheable item: a URL plus a kind, and for tiles
// the coordinate within the source's template. PriorModified/PriorExpires/
// PriorEtag are write-only revalidation hints passed to the online source;
// they play no part in cache-key equality.
type Resource struct {
	Kind Kind
	URL  string
	Tile *TileCoord

	PriorModified *time.Time
	PriorExpires  *time.Time
	PriorEtag     *string
}

// StyleResource builds a Resource of KindStyle for the given style URL.
func StyleResource(url string) Resource {
	return Resource{Kind: KindStyle, URL: url}
}

// SourceResource builds a Resource of KindSource for the given TileJSON/
// GeoJSON source URL.
func SourceResource(url string) Resource {
	return Resource{Kind: KindSource, URL: url}
}

// SpriteImageResource builds a Resource of KindSpriteImage.
func SpriteImageResource(url string) Resource {
	return Resource{Kind: KindSpriteImage, URL: url}
}

// SpriteJSONResource builds a Resource of KindSpriteJSON.
func SpriteJSONResource(url string) Resource {
	return Resource{Kind: KindSpriteJSON, URL: url}
}

// GlyphsResource builds a Resource of KindGlyphs for one glyph range request.
func GlyphsResource(url string) Resource {
	return Resource{Kind: KindGlyphs, URL: url}
}

// TileResource builds a Resource of KindTile bound to a tile coordinate.
func TileResource(urlTemplate string, pixelRatio, z, x, y int) Resource {
	return Resource{
		Kind: KindTile,
		Tile: &TileCoord{URLTemplate: urlTemplate, PixelRatio: pixelRatio, X: x, Y: y, Z: z},
	}
}

// CacheKey returns the tuple that identifies this resource as a cache key,
// per the equality rule: for tiles, (urlTemplate, pixelRatio, z, x, y); for
// everything else, (kind, url).
func (r Resource) CacheKey() any {
	if r.Kind == KindTile && r.Tile != nil {
		return struct {
			URLTemplate string
			PixelRatio  int
			Z, X, Y     int
		}{r.Tile.URLTemplate, r.Tile.PixelRatio, r.Tile.Z, r.Tile.X, r.Tile.Y}
	}
	return struct {
		Kind Kind
		URL  string
	}{r.Kind, r.URL}
}

// ErrorReason classifies why a Response carries no usable payload.
type ErrorReason int

const (
	ErrorNone ErrorReason = iota
	ErrorNotFound
	ErrorServer
	ErrorConnection
	ErrorOther
)

func (e ErrorReason) String() string {
	switch e {
	case ErrorNotFound:
		return "NotFound"
	case ErrorServer:
		return "Server"
	case ErrorConnection:
		return "Connection"
	case ErrorOther:
		return "Other"
	default:
		return "Success"
	}
}

// Transient reports whether the reason marks a transient failure that must
// never be persisted to the cache store.
func (e ErrorReason) Transient() bool {
	return e == ErrorServer || e == ErrorConnection
}

// ResponseError is the terminal-failure half of a Response.
type ResponseError struct {
	Reason  ErrorReason
	Message string
}

// Response is the stored form of a fetched Resource: either a successful
// payload (Error == nil, Data != nil) or a NotFound negative cache entry
// (Error.Reason == ErrorNotFound, Data == nil). Connection and Server errors
// are represented transiently in memory but the cache store refuses to
// persist them (see Store.Put).
type Response struct {
	Data     []byte
	Modified *time.Time
	Expires  *time.Time
	Etag     *string
	Error    *ResponseError
}

// Cacheable reports whether this response is allowed to be written to the
// persistent store: anything except a transient network error.
func (r Response) Cacheable() bool {
	return r.Error == nil || !r.Error.Reason.Transient()
}

// Equal compares the fields the store round-trips: data, modified, expires,
// etag, and error. Used by tests to assert the round-trip property.
func (r Response) Equal(other Response) bool {
	if !bytesEqual(r.Data, other.Data) {
		return false
	}
	if !timePtrEqual(r.Modified, other.Modified) || !timePtrEqual(r.Expires, other.Expires) {
		return false
	}
	if !stringPtrEqual(r.Etag, other.Etag) {
		return false
	}
	switch {
	case r.Error == nil && other.Error == nil:
		return true
	case r.Error == nil || other.Error == nil:
		return false
	default:
		return r.Error.Reason == other.Error.Reason && r.Error.Message == other.Error.Message
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
