package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindResourceKnownKinds(t *testing.T) {
	for _, kind := range []string{"style", "source", "sprite-image", "sprite-json", "glyphs"} {
		res, err := kindResource(kind, "http://h/x")
		require.NoError(t, err)
		assert.Equal(t, "http://h/x", res.URL)
	}
}

func TestKindResourceUnknownKind(t *testing.T) {
	_, err := kindResource("bogus", "http://h/x")
	assert.Error(t, err)
}
