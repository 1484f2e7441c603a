package offline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tileSet(tiles []TileID) map[[3]int]bool {
	set := make(map[[3]int]bool, len(tiles))
	for _, t := range tiles {
		set[[3]int{t.Z, t.X, t.Y}] = true
	}
	return set
}

func TestCoverEmptyBounds(t *testing.T) {
	assert.Empty(t, Cover(EmptyBounds(), 0, 0))
}

func TestCoverPolarOnlyBounds(t *testing.T) {
	arctic := HullBounds(LatLng{86, -180}, LatLng{90, 180})
	assert.Empty(t, Cover(arctic, 0, 0), "TC7: entirely outside the Mercator band")

	antarctic := HullBounds(LatLng{-86, -180}, LatLng{-90, 180})
	assert.Empty(t, Cover(antarctic, 0, 0))
}

func TestCoverWorldZ0(t *testing.T) {
	tiles := Cover(WorldBounds(), 0, 0)
	require.Len(t, tiles, 1)
	assert.Equal(t, TileID{Z: 0, X: 0, Y: 0, W: 0}, tiles[0])
}

func TestCoverWorldZ1(t *testing.T) {
	// TC6
	tiles := Cover(WorldBounds(), 1, 1)
	require.Len(t, tiles, 4)
	want := map[[3]int]bool{
		{1, 0, 0}: true, {1, 1, 0}: true, {1, 0, 1}: true, {1, 1, 1}: true,
	}
	assert.Equal(t, want, tileSet(tiles))
}

var sanFrancisco = HullBounds(LatLng{37.6609, -122.5744}, LatLng{37.8271, -122.3204})

func TestCoverSanFranciscoZ10(t *testing.T) {
	// TC5
	tiles := Cover(sanFrancisco, 10, 10)
	want := map[[3]int]bool{
		{10, 163, 395}: true, {10, 164, 395}: true,
		{10, 163, 396}: true, {10, 164, 396}: true,
	}
	assert.Equal(t, want, tileSet(tiles))
}

func TestCoverDeterministic(t *testing.T) {
	// universal property 7
	a := Cover(sanFrancisco, 10, 10)
	b := Cover(sanFrancisco, 10, 10)
	assert.Equal(t, tileSet(a), tileSet(b))
}

func TestOfflineCoverTileSizeAffectsZoom(t *testing.T) {
	// TC8
	at512 := OfflineCover(WorldBounds(), 0, 0, SourceVector, 512, SourceInfo{})
	require.Len(t, at512, 1)
	assert.Equal(t, 0, at512[0].Z)

	at256 := OfflineCover(WorldBounds(), 0, 0, SourceVector, 256, SourceInfo{})
	require.Len(t, at256, 4)
	assert.Equal(t, 1, at256[0].Z)
}

func TestOfflineCoverEmptyBounds(t *testing.T) {
	assert.Empty(t, OfflineCover(EmptyBounds(), 0, 20, SourceVector, 512, SourceInfo{}))
}

func TestOfflineCoverEmptyZoomIntersection(t *testing.T) {
	minZ, maxZ := 6.0, 20.0
	info := SourceInfo{MinZoom: &minZ, MaxZoom: &maxZ}
	assert.Empty(t, OfflineCover(WorldBounds(), 0, 5, SourceVector, 512, info))
}

func TestOfflineCoverZoomIntersection(t *testing.T) {
	lo, hi := 0.0, 2.0
	info := SourceInfo{MinZoom: &lo, MaxZoom: &hi}
	tiles := OfflineCover(sanFrancisco, 1, 3, SourceVector, 512, info)
	assert.Len(t, tiles, 2)
}

func TestOfflineCoverVectorVsRasterRounding(t *testing.T) {
	sanFranciscoWrapped := HullBounds(LatLng{37.6609, 238.5744}, LatLng{37.8271, 238.3204})

	vector := OfflineCover(sanFranciscoWrapped, 0.6, 0.7, SourceVector, 512, SourceInfo{})
	require.Len(t, vector, 1)
	assert.Equal(t, 0, vector[0].Z)

	raster := OfflineCover(sanFranciscoWrapped, 0.6, 0.7, SourceRaster, 512, SourceInfo{})
	require.Len(t, raster, 1)
	assert.Equal(t, 1, raster[0].Z)
}

func TestOfflineCoverWrapped(t *testing.T) {
	sanFranciscoWrapped := HullBounds(LatLng{37.6609, 238.5744}, LatLng{37.8271, 238.3204})

	tiles := OfflineCover(sanFranciscoWrapped, 0, 0, SourceVector, 512, SourceInfo{})
	require.Len(t, tiles, 1)
	assert.Equal(t, TileID{Z: 0, X: 0, Y: 0, W: 1}, tiles[0])
}
