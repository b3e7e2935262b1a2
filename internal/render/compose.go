// ============================================================================
// TheSquid Render Compositor
// ============================================================================
//
// Package: internal/render
// File: compose.go
// Purpose: Copy a rendered fragment into the final image
//
// The renderer addresses rows from the top, the image buffer from the
// bottom; the copy applies a Y-flip using the configured image height.
// Composing the same fragment twice is harmless (pure overwrite), which is
// what makes duplicate execution after a timeout safe.
//
// ============================================================================

package render

import (
	"fmt"
	"os"
	"strconv"
)

// Compose merges one completed fragment into the final image: open the
// final image or create a blank one, copy the fragment's pixels with the
// Y-flip, save, and delete the fragment file.
func Compose(p Payload) error {
	width, err := strconv.Atoi(p.Width)
	if err != nil {
		return fmt.Errorf("compose: invalid width %q", p.Width)
	}
	height, err := strconv.Atoi(p.Height)
	if err != nil {
		return fmt.Errorf("compose: invalid height %q", p.Height)
	}
	top, err := strconv.Atoi(p.Top)
	if err != nil {
		return fmt.Errorf("compose: invalid top %q", p.Top)
	}
	left, err := strconv.Atoi(p.Left)
	if err != nil {
		return fmt.Errorf("compose: invalid left %q", p.Left)
	}

	var final *Image
	if _, err := os.Stat(p.Output); err == nil {
		final, err = OpenTGA(p.Output)
		if err != nil {
			return fmt.Errorf("compose: %w", err)
		}
	} else {
		final = NewImage(width, height)
	}

	frag, err := OpenTGA(p.Fragment)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	for fy := 0; fy < frag.Height; fy++ {
		// Row in renderer coordinates (1-indexed from the top), flipped into
		// the bottom-left origin of the image buffer.
		topRow := top - 1 + fy
		destY := height - 1 - topRow
		if destY < 0 || destY >= final.Height {
			continue
		}
		for fx := 0; fx < frag.Width; fx++ {
			destX := left - 1 + fx
			if destX < 0 || destX >= final.Width {
				continue
			}
			// The fragment file is bottom-left origin too: its row 0 is the
			// fragment's bottom row.
			final.SetPixel(destX, destY, frag.GetPixel(fx, frag.Height-1-fy))
		}
	}

	if err := final.SaveTGA(p.Output); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if err := os.Remove(p.Fragment); err != nil {
		return fmt.Errorf("compose: remove fragment: %w", err)
	}
	return nil
}
