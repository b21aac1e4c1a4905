// Package thumbnail downscales proxied thumbnails to the requested edge size.
package thumbnail

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"github.com/nfnt/resize"

	"github.com/pysugar/photopick/internal/upstream"
)

const (
	DefaultSize = 220
	MinSize     = 32
	MaxSize     = 1600

	jpegQuality = 85
)

// ParseSize reads a size query value, defaulting and clamping it.
func ParseSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultSize
	}
	if n < MinSize {
		return MinSize
	}
	if n > MaxSize {
		return MaxSize
	}
	return n
}

// Fit shrinks c so neither edge exceeds size. Images already small enough, or
// in a format the decoder does not know, are returned unchanged with false.
func Fit(c *upstream.Content, size int) (*upstream.Content, bool) {
	if c == nil || size <= 0 {
		return c, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil || (cfg.Width <= size && cfg.Height <= size) {
		return c, false
	}
	img, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		return c, false
	}

	thumb := resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)

	var buf bytes.Buffer
	contentType := "image/jpeg"
	if format == "png" {
		contentType = "image/png"
		err = png.Encode(&buf, thumb)
	} else {
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return c, false
	}
	return &upstream.Content{Data: buf.Bytes(), ContentType: contentType}, true
}
