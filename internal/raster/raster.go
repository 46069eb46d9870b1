// Package raster turns selected pages of a source document into image files
// inside a scratch scope. Pages are processed one at a time so a failure on
// one page never takes down the rest of the request.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
)

// Document is an open source document that can render individual pages.
// Page numbers are 1-based.
type Document interface {
	PageCount() int
	RenderPage(page int) (image.Image, error)
	Close() error
}

// Renderer opens documents for rasterization. Abstracting the engine keeps
// the pipeline and viewer independent of how rendering is obtained; the one
// real implementation initializes the engine lazily per document.
type Renderer interface {
	Open(path string) (Document, error)
}

// Result carries the per-page outcome of a rasterization run. Assets follow
// the caller-supplied page order; failures record pages that were skipped.
type Result struct {
	Assets   []model.PageAsset
	Failures []model.PageFailure
}

// Service rasterizes page selections.
type Service struct {
	renderer Renderer
	log      *slog.Logger
}

// NewService constructs a Service.
func NewService(renderer Renderer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{renderer: renderer, log: log}
}

// Rasterize renders each requested page of the document at docPath into the
// scope as PNG files. Each page is attempted independently: out-of-range
// numbers and render errors become entries in Failures while the remaining
// pages continue. The caller decides what an empty asset set means.
func (s *Service) Rasterize(ctx context.Context, docPath string, pages []int, scope *scratch.Scope) (*Result, error) {
	doc, err := s.renderer.Open(docPath)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	res := &Result{}
	total := doc.PageCount()
	seen := make(map[int]int)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page < 1 || (total > 0 && page > total) {
			s.log.Warn("page out of range", "page", page, "pageCount", total)
			res.Failures = append(res.Failures, model.PageFailure{
				Page:   page,
				Reason: fmt.Sprintf("page %d out of range (document has %d pages)", page, total),
			})
			continue
		}
		img, err := doc.RenderPage(page)
		if err != nil {
			s.log.Warn("page render failed", "page", page, "error", err)
			res.Failures = append(res.Failures, model.PageFailure{Page: page, Reason: err.Error()})
			continue
		}
		name := assetName(page, seen)
		path, err := encodePNG(scope, name, img)
		if err != nil {
			s.log.Warn("page encode failed", "page", page, "error", err)
			res.Failures = append(res.Failures, model.PageFailure{Page: page, Reason: err.Error()})
			continue
		}
		res.Assets = append(res.Assets, model.PageAsset{Page: page, Name: name, Path: path})
	}
	return res, nil
}

// assetName yields "page-5.png", with a counter suffix when the same page
// number appears more than once in the selection.
func assetName(page int, seen map[int]int) string {
	seen[page]++
	if n := seen[page]; n > 1 {
		return fmt.Sprintf("page-%d-%d.png", page, n)
	}
	return fmt.Sprintf("page-%d.png", page)
}

func encodePNG(scope *scratch.Scope, name string, img image.Image) (string, error) {
	path := scope.File(name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}
