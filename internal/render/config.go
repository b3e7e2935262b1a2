// ============================================================================
// TheSquid Render Configuration
// ============================================================================
//
// Package: internal/render
// File: config.go
// Purpose: Parse the renderer's plain-text configuration file
//
// The file is one Key=Value per line. Width, Height and Output_File_Name
// are required; everything else belongs to the renderer and is passed
// through untouched via the file path.
//
// ============================================================================

// Package render implements fragment tiling and final-image assembly for
// split render jobs
package render

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the render settings the dispatcher needs
type Config struct {
	Width      int    // Final image width in pixels
	Height     int    // Final image height in pixels
	OutputFile string // Final image path
}

// ParseConfig reads a Key=Value render config file and extracts the fields
// the dispatcher needs. Missing required keys fail the call, not the
// process.
func ParseConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open render config: %w", err)
	}
	defer f.Close()

	var cfg Config
	var haveWidth, haveHeight, haveOutput bool

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Width":
			cfg.Width, err = strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("render config %s: invalid Width %q", path, value)
			}
			haveWidth = true
		case "Height":
			cfg.Height, err = strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("render config %s: invalid Height %q", path, value)
			}
			haveHeight = true
		case "Output_File_Name":
			cfg.OutputFile = value
			haveOutput = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("read render config: %w", err)
	}

	if !haveWidth || !haveHeight || !haveOutput {
		return Config{}, fmt.Errorf(
			"render config %s: Width, Height and Output_File_Name are required", path)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, fmt.Errorf(
			"render config %s: dimensions must be positive, got %dx%d",
			path, cfg.Width, cfg.Height)
	}
	return cfg, nil
}
