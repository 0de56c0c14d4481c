// Package imaging prepares meal photos for storage.
//
// Two ways in, on purpose treated differently:
//
//	file upload   → Shrink: decode, fit inside maxDim×maxDim, re-encode as JPEG
//	base64 field  → DecodeBase64: bytes stored exactly as sent, no resizing
//
// Existing clients that send base64 already downscale on the device, and some
// rely on getting their exact bytes back, so that path is left alone.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"

	// Decoders register themselves with image.Decode in their init().
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension is the longest side, in pixels, of a stored upload.
const DefaultMaxDimension = 800

// JPEGQuality for re-encoded uploads.
const JPEGQuality = 75

// MaxPixels caps width×height of an upload before it is decoded. A few KB
// of PNG can declare a canvas that needs gigabytes once decoded.
const MaxPixels = 40_000_000

var (
	// ErrInvalidImage means the upload could not be decoded as any known format.
	ErrInvalidImage = errors.New("imaging: invalid image file")
	// ErrInvalidBase64 means the image field was not valid base64.
	ErrInvalidBase64 = errors.New("imaging: invalid base64 image data")
)

// Shrink decodes an uploaded image and returns it as JPEG bytes whose longest
// side is at most maxDim. Smaller images keep their size; nothing is enlarged.
//
// JPEG has no alpha channel, so the picture is composited onto white first.
// Transparent PNG corners come out white instead of black.
func Shrink(r io.Reader, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	// Read only the header first; the bytes it consumed are replayed for
	// the full decode.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := src.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), maxDim)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		// CatmullRom is the slowest of x/image/draw's scalers but the sharpest
		// when shrinking; for one photo per request the cost doesn't matter.
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales (w, h) down to fit inside a maxDim square, keeping the aspect
// ratio. Sides are rounded down but never below one pixel.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

// DecodeBase64 decodes an image sent as text.
//
// A data URL prefix ("data:image/jpeg;base64,") is stripped first. Padded
// standard base64 is tried, then unpadded, since browsers and mobile SDKs
// disagree on padding. Whitespace and line breaks are ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data URL without payload", ErrInvalidBase64)
		}
		s = payload
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBase64)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(s)
	if rawErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
}
