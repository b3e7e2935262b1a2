// ============================================================================
// TheSquid Render Fragments
// ============================================================================
//
// Package: internal/render
// File: fragment.go
// Purpose: Tile a render job into independently renderable fragments
//
// Fragment coordinates are 1-indexed with a top-left origin and inclusive
// bounds, matching the renderer's row/column selection convention.
//
// ============================================================================

package render

import (
	"encoding/json"
	"fmt"
)

// Fragment is one sub-rectangle of a render job
type Fragment struct {
	Top    int // First row, 1-indexed from the top
	Left   int // First column, 1-indexed
	Bottom int // Last row, inclusive
	Right  int // Last column, inclusive
}

// FragmentEdge computes the fragment edge length used on both axes:
// width/nbWorkers clamped into [min, max]. The worker count is purely a
// sizing hint.
func FragmentEdge(min, max, width, nbWorkers int) int {
	edge := width
	if nbWorkers > 0 {
		edge = width / nbWorkers
	}
	if edge < min {
		edge = min
	}
	if edge > max {
		edge = max
	}
	return edge
}

// SplitFragments tiles a width x height image into fragments of the given
// edge length, clipping the right and bottom edges to the image.
func SplitFragments(width, height, edge int) []Fragment {
	var fragments []Fragment
	for top := 1; top <= height; top += edge {
		bottom := top + edge - 1
		if bottom > height {
			bottom = height
		}
		for left := 1; left <= width; left += edge {
			right := left + edge - 1
			if right > width {
				right = width
			}
			fragments = append(fragments, Fragment{
				Top:    top,
				Left:   left,
				Bottom: bottom,
				Right:  right,
			})
		}
	}
	return fragments
}

// Payload is the JSON body of a render task. It carries the fragment
// rectangle and the final-image metadata; all values are strings, like
// every other payload field on the wire.
type Payload struct {
	Ini      string `json:"ini"`     // Render config path
	Top      string `json:"top"`     // Fragment bounds, 1-indexed inclusive
	Left     string `json:"left"`
	Bottom   string `json:"bottom"`
	Right    string `json:"right"`
	Width    string `json:"width"`   // Final image width
	Height   string `json:"height"`  // Final image height
	Output   string `json:"tga"`     // Final image path
	Fragment string `json:"fragTga"` // Per-fragment output path
}

// FragmentPath derives the per-fragment output file from the final output
// path and the task sub-id, so concurrent workers never collide.
func FragmentPath(outputFile string, subID uint64) string {
	return fmt.Sprintf("%s.frag%d.tga", outputFile, subID)
}

// EncodePayload builds the payload JSON for one fragment task
func EncodePayload(iniPath string, frag Fragment, cfg Config, subID uint64) (string, error) {
	p := Payload{
		Ini:      iniPath,
		Top:      fmt.Sprintf("%d", frag.Top),
		Left:     fmt.Sprintf("%d", frag.Left),
		Bottom:   fmt.Sprintf("%d", frag.Bottom),
		Right:    fmt.Sprintf("%d", frag.Right),
		Width:    fmt.Sprintf("%d", cfg.Width),
		Height:   fmt.Sprintf("%d", cfg.Height),
		Output:   cfg.OutputFile,
		Fragment: FragmentPath(cfg.OutputFile, subID),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode render payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses a render task payload
func DecodePayload(payload string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Payload{}, fmt.Errorf("decode render payload: %w", err)
	}
	return p, nil
}
