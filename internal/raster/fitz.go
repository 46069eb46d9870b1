package raster

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer renders PDF pages through MuPDF (go-fitz) at a fixed DPI. The
// engine is only touched when Open is called, so requests that arrive with
// pre-rendered images never pay for it.
type FitzRenderer struct {
	dpi float64
}

// NewFitzRenderer constructs a renderer. DPI <= 0 falls back to 144.
func NewFitzRenderer(dpi int) *FitzRenderer {
	if dpi <= 0 {
		dpi = 144
	}
	return &FitzRenderer{dpi: float64(dpi)}
}

// Open loads the document at path.
func (r *FitzRenderer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("fitz open: %w", err)
	}
	return &fitzDocument{doc: doc, dpi: r.dpi}, nil
}

type fitzDocument struct {
	doc *fitz.Document
	dpi float64
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

// RenderPage renders a 1-based page number; go-fitz counts from zero.
func (d *fitzDocument) RenderPage(page int) (image.Image, error) {
	img, err := d.doc.ImageDPI(page-1, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
