package document

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/go-pdf/fpdf"
)

// ImageDecoder reports the pixel size of an image file.
type ImageDecoder interface {
	Dimensions(path string) (width, height int, err error)
}

// StdDecoder reads image headers with the image package.
type StdDecoder struct{}

// Dimensions implements ImageDecoder.
func (StdDecoder) Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Canvas receives one image per page and writes the finished document.
type Canvas interface {
	AddImagePage(path string, kind Kind, p Placement) error
	Save(path string) error
}

// PDFCanvas is a Canvas producing A5 PDF pages.
type PDFCanvas struct {
	pdf *fpdf.Fpdf
}

// NewPDFCanvas returns an empty A5 document measured in millimetres.
func NewPDFCanvas() *PDFCanvas {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("Comik", true)
	return &PDFCanvas{pdf: pdf}
}

// AddImagePage implements Canvas.
func (c *PDFCanvas) AddImagePage(path string, kind Kind, p Placement) error {
	c.pdf.AddPage()
	// fpdf treats a zero size as "natural size"; a zero scale means an empty page.
	if p.Width <= 0 || p.Height <= 0 {
		return c.pdf.Error()
	}
	c.pdf.ImageOptions(path, p.X, p.Y, p.Width, p.Height, false,
		fpdf.ImageOptions{ImageType: string(kind)}, 0, "")
	if err := c.pdf.Error(); err != nil {
		return fmt.Errorf("failed to draw %s: %w", path, err)
	}
	return nil
}

// PageCount returns the number of pages added so far.
func (c *PDFCanvas) PageCount() int {
	return c.pdf.PageCount()
}

// Save implements Canvas.
func (c *PDFCanvas) Save(path string) error {
	if err := c.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
