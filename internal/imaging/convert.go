package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/dominantcolor"
	"github.com/chai2010/webp"

	_ "image/jpeg"
	_ "image/png"
)

// DefaultQuality matches the lossy quality the catalog has always served.
const DefaultQuality = 80

// Converted is the result of a successful conversion. Path is a sibling of
// the staged file; Name is its base name and the asset's canonical name.
type Converted struct {
	Path   string
	Name   string
	Colors []byte
}

// ConversionError wraps any failure of the conversion pipeline. The staged
// input is left in place when it is returned.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

type WebPConverter struct {
	Quality float32
	Now     func() time.Time
}

func NewWebPConverter() *WebPConverter {
	return &WebPConverter{Quality: DefaultQuality, Now: time.Now}
}

// Convert decodes the staged JPEG/PNG, writes a WebP next to it under its
// canonical name and removes the staged original.
func (c *WebPConverter) Convert(ctx context.Context, stagedPath, originalName string) (Converted, error) {
	if err := ctx.Err(); err != nil {
		return Converted{}, &ConversionError{Path: stagedPath, Err: err}
	}

	img, err := decode(stagedPath)
	if err != nil {
		return Converted{}, &ConversionError{Path: stagedPath, Err: err}
	}

	var (
		dir  = filepath.Dir(stagedPath)
		name = CanonicalName(originalName, c.now())
		dest = filepath.Join(dir, name)
	)

	tmp, err := os.CreateTemp(dir, ".convert-*.tmp")
	if err != nil {
		return Converted{}, &ConversionError{Path: stagedPath, Err: err}
	}
	tmpPath := tmp.Name()

	err = webp.Encode(tmp, img, &webp.Options{Quality: c.Quality})
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Converted{}, &ConversionError{Path: stagedPath, Err: fmt.Errorf("encode webp: %w", err)}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return Converted{}, &ConversionError{Path: stagedPath, Err: err}
	}

	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(dest)
		return Converted{}, &ConversionError{Path: stagedPath, Err: fmt.Errorf("remove original: %w", err)}
	}

	return Converted{Path: dest, Name: name, Colors: dominantColors(img)}, nil
}

func (c *WebPConverter) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func dominantColors(img image.Image) []byte {
	colors := make(map[int][4]uint8)
	for i, color := range dominantcolor.FindN(img, 4) {
		colors[i] = [4]uint8{color.R, color.G, color.B, color.A}
	}
	b, err := json.Marshal(colors)
	if err != nil {
		return nil
	}
	return b
}
