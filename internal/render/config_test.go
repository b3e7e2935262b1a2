package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfig(t *testing.T) {
	path := writeConfig(t, "Width=200\nHeight=100\nOutput_File_Name=out.tga\nQuality=9\n")

	cfg, err := ParseConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
	assert.Equal(t, "out.tga", cfg.OutputFile)
}

func TestParseConfigSpacesAndBlankLines(t *testing.T) {
	path := writeConfig(t, "\n Width = 64 \n\nHeight=64\nOutput_File_Name= out.tga\n")

	cfg, err := ParseConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, "out.tga", cfg.OutputFile)
}

func TestParseConfigMissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no width", "Height=100\nOutput_File_Name=out.tga\n"},
		{"no height", "Width=100\nOutput_File_Name=out.tga\n"},
		{"no output", "Width=100\nHeight=100\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseConfigBadValues(t *testing.T) {
	_, err := ParseConfig(writeConfig(t, "Width=abc\nHeight=100\nOutput_File_Name=o.tga\n"))
	assert.Error(t, err)

	_, err = ParseConfig(writeConfig(t, "Width=0\nHeight=100\nOutput_File_Name=o.tga\n"))
	assert.Error(t, err)
}

func TestParseConfigMissingFile(t *testing.T) {
	_, err := ParseConfig(filepath.Join(t.TempDir(), "nope.ini"))
	assert.Error(t, err)
}
