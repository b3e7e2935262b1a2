// ============================================================================
// TheSquid Image Collaborator
// ============================================================================
//
// Package: internal/render
// File: image.go
// Purpose: Pixel buffer with TGA file I/O for fragment assembly
//
// The pixel buffer uses a bottom-left origin: (0,0) is the bottom-left
// corner, matching the TGA default. The renderer's coordinates are
// top-left; the compositor performs the Y-flip.
//
// The codec handles uncompressed true-color TGA (type 2, 24 or 32 bpp) with
// either origin bit, which covers every file the renderer and the
// compositor exchange.
//
// ============================================================================

package render

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Pixel is one RGBA pixel
type Pixel struct {
	R, G, B, A uint8
}

// Image is a pixel buffer with a bottom-left origin
type Image struct {
	Width  int
	Height int
	pixels []Pixel
}

// NewImage creates a blank black image of the given dimensions
func NewImage(width, height int) *Image {
	img := &Image{
		Width:  width,
		Height: height,
		pixels: make([]Pixel, width*height),
	}
	for i := range img.pixels {
		img.pixels[i].A = 255
	}
	return img
}

// GetPixel returns the pixel at (x, y), y counted from the bottom
func (img *Image) GetPixel(x, y int) Pixel {
	return img.pixels[y*img.Width+x]
}

// SetPixel sets the pixel at (x, y), y counted from the bottom
func (img *Image) SetPixel(x, y int, p Pixel) {
	img.pixels[y*img.Width+x] = p
}

// tgaHeader is the fixed 18-byte TGA file header
type tgaHeader struct {
	IDLength   uint8
	MapType    uint8
	ImageType  uint8
	MapSpec    [5]byte
	OriginX    uint16
	OriginY    uint16
	Width      uint16
	Height     uint16
	Depth      uint8
	Descriptor uint8
}

// OpenTGA loads an uncompressed true-color TGA file
func OpenTGA(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tga: %w", err)
	}
	defer f.Close()

	var h tgaHeader
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read tga header: %w", err)
	}
	if h.ImageType != 2 {
		return nil, fmt.Errorf("tga %s: unsupported image type %d", path, h.ImageType)
	}
	if h.Depth != 24 && h.Depth != 32 {
		return nil, fmt.Errorf("tga %s: unsupported depth %d", path, h.Depth)
	}
	if h.IDLength > 0 {
		if _, err := io.CopyN(io.Discard, f, int64(h.IDLength)); err != nil {
			return nil, fmt.Errorf("skip tga id: %w", err)
		}
	}

	width := int(h.Width)
	height := int(h.Height)
	img := NewImage(width, height)
	bytesPerPixel := int(h.Depth) / 8
	row := make([]byte, width*bytesPerPixel)

	// Descriptor bit 5: 0 = bottom-to-top row order, 1 = top-to-bottom
	topDown := h.Descriptor&0x20 != 0

	for i := 0; i < height; i++ {
		if _, err := io.ReadFull(f, row); err != nil {
			return nil, fmt.Errorf("read tga row: %w", err)
		}
		y := i
		if topDown {
			y = height - 1 - i
		}
		for x := 0; x < width; x++ {
			o := x * bytesPerPixel
			p := Pixel{B: row[o], G: row[o+1], R: row[o+2], A: 255}
			if bytesPerPixel == 4 {
				p.A = row[o+3]
			}
			img.SetPixel(x, y, p)
		}
	}
	return img, nil
}

// SaveTGA writes the image as an uncompressed 24-bit bottom-to-top TGA
func (img *Image) SaveTGA(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create tga: %w", err)
	}
	defer f.Close()

	h := tgaHeader{
		ImageType: 2,
		Width:     uint16(img.Width),
		Height:    uint16(img.Height),
		Depth:     24,
	}
	if err := binary.Write(f, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write tga header: %w", err)
	}

	row := make([]byte, img.Width*3)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			p := img.GetPixel(x, y)
			o := x * 3
			row[o] = p.B
			row[o+1] = p.G
			row[o+2] = p.R
		}
		if _, err := f.Write(row); err != nil {
			return fmt.Errorf("write tga row: %w", err)
		}
	}
	return nil
}
