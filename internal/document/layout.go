// Package document assembles a chapter's page images into a single PDF
// sized for an A5 reader.
package document

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

const (
	// DPI is the resolution page images are assumed to be scanned at.
	DPI = 300

	// PageWidth and PageHeight are the A5 page size in millimetres.
	PageWidth  = 148.0
	PageHeight = 210.0

	mmPerInch = 25.4
)

var (
	// ErrUnsupportedFormat is returned for images that are neither PNG nor JPEG.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrNoImages is returned when a document would have no pages.
	ErrNoImages = errors.New("no images to assemble")
	// ErrInvalidScale is returned for a scale outside [0, 1].
	ErrInvalidScale = errors.New("scale must be between 0 and 1")
)

// Kind is an image encoding the canvas can embed.
type Kind string

const (
	KindPNG  Kind = "png"
	KindJPEG Kind = "jpg"
)

// KindOf infers the image kind from the file extension.
func KindOf(path string) (Kind, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return KindPNG, nil
	case "jpg", "jpeg":
		return KindJPEG, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// PixelsToMM converts a pixel length at DPI into millimetres.
func PixelsToMM(px float64) float64 {
	return px / DPI * mmPerInch
}

// Placement is where an image lands on its page, in page units.
type Placement struct {
	X, Y          float64
	Width, Height float64
	Factor        float64
}

// Layout fits an image of w×h into a page of pageW×pageH, keeping its aspect
// ratio, shrinking it further by scale and centring it on both axes.
func Layout(w, h, pageW, pageH, scale float64) Placement {
	factor := math.Min(pageW/w, pageH/h) * scale
	width, height := w*factor, h*factor
	return Placement{
		X:      (pageW - width) / 2,
		Y:      (pageH - height) / 2,
		Width:  width,
		Height: height,
		Factor: factor,
	}
}
