package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentEdge(t *testing.T) {
	tests := []struct {
		name                       string
		min, max, width, nbWorkers int
		want                       int
	}{
		{"clamped to max", 100, 150, 200, 1, 150},
		{"clamped to min", 100, 150, 200, 4, 100},
		{"within range", 50, 300, 800, 4, 200},
		{"zero workers falls back to width", 10, 5000, 640, 0, 640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FragmentEdge(tt.min, tt.max, tt.width, tt.nbWorkers))
		})
	}
}

func TestSplitFragmentsExact(t *testing.T) {
	frags := SplitFragments(200, 200, 100)
	require.Len(t, frags, 4)
	assert.Equal(t, Fragment{Top: 1, Left: 1, Bottom: 100, Right: 100}, frags[0])
	assert.Equal(t, Fragment{Top: 101, Left: 101, Bottom: 200, Right: 200}, frags[3])
}

func TestSplitFragmentsClipped(t *testing.T) {
	frags := SplitFragments(250, 130, 100)
	// ceil(250/100) x ceil(130/100) = 3 x 2
	require.Len(t, frags, 6)

	last := frags[len(frags)-1]
	assert.Equal(t, 130, last.Bottom)
	assert.Equal(t, 250, last.Right)
	assert.Equal(t, 101, last.Top)
	assert.Equal(t, 201, last.Left)
}

// Every pixel of the image is covered by exactly one fragment and the
// fragment areas sum to at least the image area.
func TestSplitFragmentsCoverEveryPixelOnce(t *testing.T) {
	const width, height, edge = 250, 130, 100
	frags := SplitFragments(width, height, edge)

	covered := make([]int, width*height)
	area := 0
	for _, f := range frags {
		require.LessOrEqual(t, f.Left, f.Right)
		require.LessOrEqual(t, f.Top, f.Bottom)
		area += (f.Right - f.Left + 1) * (f.Bottom - f.Top + 1)
		for y := f.Top; y <= f.Bottom; y++ {
			for x := f.Left; x <= f.Right; x++ {
				covered[(y-1)*width+(x-1)]++
			}
		}
	}

	assert.GreaterOrEqual(t, area, width*height)
	for i, n := range covered {
		require.Equal(t, 1, n, "pixel %d covered %d times", i, n)
	}
}

func TestFragmentPath(t *testing.T) {
	assert.Equal(t, "scene.tga.frag3.tga", FragmentPath("scene.tga", 3))
}

func TestPayloadRoundTrip(t *testing.T) {
	cfg := Config{Width: 200, Height: 100, OutputFile: "final.tga"}
	frag := Fragment{Top: 1, Left: 101, Bottom: 100, Right: 200}

	encoded, err := EncodePayload("scene.ini", frag, cfg, 2)
	require.NoError(t, err)

	p, err := DecodePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, "scene.ini", p.Ini)
	assert.Equal(t, "101", p.Left)
	assert.Equal(t, "200", p.Right)
	assert.Equal(t, "final.tga", p.Output)
	assert.Equal(t, "final.tga.frag2.tga", p.Fragment)
}

func TestDecodePayloadBadJSON(t *testing.T) {
	_, err := DecodePayload("not json")
	assert.Error(t, err)
}
