package offline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCacheKeyTile(t *testing.T) {
	a := TileResource("https://example.com/{z}/{x}/{y}.pbf", 2, 10, 163, 395)
	b := TileResource("https://example.com/{z}/{x}/{y}.pbf", 2, 10, 163, 395)
	c := TileResource("https://example.com/{z}/{x}/{y}.pbf", 2, 10, 164, 395)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
}

func TestResourceCacheKeyOther(t *testing.T) {
	a := StyleResource("http://h/style.json")
	b := StyleResource("http://h/style.json")
	c := SourceResource("http://h/style.json")

	require.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey(), "same URL but different kind must not collide")
}

func TestResponseEqual(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	etag := `"abc"`

	r1 := Response{Data: []byte("hello"), Modified: &now, Etag: &etag}
	r2 := Response{Data: []byte("hello"), Modified: &now, Etag: &etag}
	assert.True(t, r1.Equal(r2))

	r3 := Response{Data: []byte("other"), Modified: &now, Etag: &etag}
	assert.False(t, r1.Equal(r3))
}

func TestErrorReasonTransientNotCacheable(t *testing.T) {
	resp := Response{Error: &ResponseError{Reason: ErrorConnection}}
	assert.False(t, resp.Cacheable())

	resp2 := Response{Error: &ResponseError{Reason: ErrorServer}}
	assert.False(t, resp2.Cacheable())

	resp3 := Response{Error: &ResponseError{Reason: ErrorNotFound}}
	assert.True(t, resp3.Cacheable())

	resp4 := Response{Data: []byte("ok")}
	assert.True(t, resp4.Cacheable())
}
