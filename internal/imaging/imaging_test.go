package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			c := color.RGBA{R: 200, G: 30, B: 30, A: 255}
			if x >= 8 {
				c = color.RGBA{R: 20, G: 40, B: 220, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStager_Stage(t *testing.T) {
	ctx := context.Background()

	t.Run("stages png", func(t *testing.T) {
		s, err := NewStager(t.TempDir())
		require.NoError(t, err)
		body := pngBytes(t)

		path, err := s.Stage(ctx, Candidate{Name: "a.png", ContentType: "image/png", Size: int64(len(body))}, bytes.NewReader(body))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, ".png"))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	t.Run("rejects content that is not an image", func(t *testing.T) {
		s, err := NewStager(t.TempDir())
		require.NoError(t, err)
		body := []byte("#!/bin/sh\necho not an image\n")

		_, err = s.Stage(ctx, Candidate{Name: "a.png", ContentType: "image/png", Size: int64(len(body))}, bytes.NewReader(body))
		assert.ErrorIs(t, err, ErrUnsupportedType)
		assert.Empty(t, dirEntries(t, s.Dir()))
	})

	t.Run("rejects body larger than declared limit", func(t *testing.T) {
		s, err := NewStager(t.TempDir())
		require.NoError(t, err)
		body := append(pngBytes(t), make([]byte, MaxUploadBytes)...)

		// declared size lies
		_, err = s.Stage(ctx, Candidate{Name: "a.png", ContentType: "image/png", Size: 10}, bytes.NewReader(body))
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Empty(t, dirEntries(t, s.Dir()))
	})

	t.Run("rejects empty body", func(t *testing.T) {
		s, err := NewStager(t.TempDir())
		require.NoError(t, err)

		_, err = s.Stage(ctx, Candidate{Name: "a.png", ContentType: "image/png", Size: 10}, bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrEmptyFile)
		assert.Empty(t, dirEntries(t, s.Dir()))
	})

	t.Run("rejects declared type before writing", func(t *testing.T) {
		s, err := NewStager(t.TempDir())
		require.NoError(t, err)

		_, err = s.Stage(ctx, Candidate{Name: "a.gif", ContentType: "image/gif", Size: 10}, strings.NewReader("GIF89a"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
		assert.Empty(t, dirEntries(t, s.Dir()))
	})
}

func TestStager_Purge(t *testing.T) {
	s, err := NewStager(t.TempDir())
	require.NoError(t, err)

	p := filepath.Join(s.Dir(), "x.png")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	assert.NoError(t, s.Purge(p))
	assert.NoFileExists(t, p)
	assert.NoError(t, s.Purge(p), "purging twice is fine")
}

func TestWebPConverter_Convert(t *testing.T) {
	ctx := context.Background()

	t.Run("converts and removes original", func(t *testing.T) {
		dir := t.TempDir()
		staged := filepath.Join(dir, "staged.png")
		require.NoError(t, os.WriteFile(staged, pngBytes(t), 0o644))

		c := NewWebPConverter()
		c.Now = func() time.Time { return time.UnixMilli(42) }

		out, err := c.Convert(ctx, staged, "front cover.png")
		require.NoError(t, err)

		assert.NoFileExists(t, staged)
		assert.FileExists(t, out.Path)
		assert.Equal(t, filepath.Base(out.Path), out.Name)
		assert.True(t, strings.HasPrefix(out.Name, "front_cover_42-"))
		assert.True(t, strings.HasSuffix(out.Name, ".webp"))

		head := make([]byte, 12)
		f, err := os.Open(out.Path)
		require.NoError(t, err)
		defer f.Close()
		_, err = f.Read(head)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(head[:4]))
		assert.Equal(t, "WEBP", string(head[8:12]))

		var colors map[string][4]uint8
		require.NoError(t, json.Unmarshal(out.Colors, &colors))
		assert.NotEmpty(t, colors)
	})

	t.Run("leaves staged file on failure", func(t *testing.T) {
		dir := t.TempDir()
		staged := filepath.Join(dir, "staged.png")
		require.NoError(t, os.WriteFile(staged, []byte("\x89PNG\r\n\x1a\ntruncated"), 0o644))

		_, err := NewWebPConverter().Convert(ctx, staged, "broken.png")

		var ce *ConversionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, staged, ce.Path)
		assert.FileExists(t, staged)
		assert.Equal(t, []string{"staged.png"}, dirEntries(t, dir))
	})

	t.Run("honours cancellation", func(t *testing.T) {
		dir := t.TempDir()
		staged := filepath.Join(dir, "staged.png")
		require.NoError(t, os.WriteFile(staged, pngBytes(t), 0o644))

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewWebPConverter().Convert(cctx, staged, "a.png")
		assert.ErrorIs(t, err, context.Canceled)
		assert.FileExists(t, staged)
	})
}
