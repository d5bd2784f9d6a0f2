package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var nameReplacer = strings.NewReplacer("/", "-", "\\", "-")

// Assembler turns an ordered list of page images into one document.
type Assembler struct {
	decoder   ImageDecoder
	newCanvas func() Canvas
}

// NewAssembler returns an assembler writing PDFs.
func NewAssembler() *Assembler {
	return NewAssemblerWith(StdDecoder{}, func() Canvas { return NewPDFCanvas() })
}

// NewAssemblerWith returns an assembler using the given decoder and a fresh
// canvas from newCanvas per document.
func NewAssemblerWith(decoder ImageDecoder, newCanvas func() Canvas) *Assembler {
	return &Assembler{decoder: decoder, newCanvas: newCanvas}
}

// Assemble lays out images one per page in the given order and saves the
// document as dir/name. It returns the written path.
func (a *Assembler) Assemble(name, dir string, images []string, scale float64) (string, error) {
	if scale < 0 || scale > 1 {
		return "", fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	if len(images) == 0 {
		return "", ErrNoImages
	}

	canvas := a.newCanvas()
	for _, img := range images {
		kind, err := KindOf(img)
		if err != nil {
			return "", err
		}
		w, h, err := a.decoder.Dimensions(img)
		if err != nil {
			return "", err
		}
		if w <= 0 || h <= 0 {
			return "", fmt.Errorf("image %s has no area", img)
		}

		p := Layout(PixelsToMM(float64(w)), PixelsToMM(float64(h)), PageWidth, PageHeight, scale)
		if err := canvas.AddImagePage(img, kind, p); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	out := filepath.Join(dir, nameReplacer.Replace(name))
	if err := canvas.Save(out); err != nil {
		return "", err
	}
	return out, nil
}
