// Package viewer implements the shareable-link flow: load a selection record
// by id, enforce the expiry window, count the access, and rasterize the
// recorded pages on demand. Rendering mirrors the delivery pipeline's
// partial-failure policy: a page that cannot be rendered becomes a
// placeholder while the rest continue.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/raster"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/selection"
)

// State is the terminal condition of a viewer load.
type State string

const (
	StateReady    State = "ready"
	StateExpired  State = "expired"
	StateNotFound State = "notFound"
	StateError    State = "error"
)

// Asset is one rendered page held in memory for the viewer session.
// Placeholder assets stand in for pages that failed to render.
type Asset struct {
	Page        int
	Name        string
	Data        []byte
	Placeholder bool
}

// Service loads viewer sessions.
type Service struct {
	store    selection.Store
	fetcher  fetch.Fetcher
	renderer raster.Renderer
	scratch  *scratch.Manager
	log      *slog.Logger

	// now is injectable so expiry behavior is testable.
	now func() time.Time
}

// NewService wires a viewer Service.
func NewService(store selection.Store, fetcher fetch.Fetcher, renderer raster.Renderer, mgr *scratch.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		fetcher:  fetcher,
		renderer: renderer,
		scratch:  mgr,
		log:      log,
		now:      time.Now,
	}
}

// Session is the outcome of loading a selection id.
type Session struct {
	State  State
	Record *model.SelectionRecord
	Err    error

	svc *Service
}

// Load fetches the record, enforces expiry, and counts the access. Expired
// and NotFound are states, not errors; the access counter is only bumped on
// the Ready path and a failed bump never blocks rendering.
func (s *Service) Load(ctx context.Context, id string) *Session {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, selection.ErrNotFound) {
			return &Session{State: StateNotFound, svc: s}
		}
		return &Session{State: StateError, Err: err, svc: s}
	}
	if rec.Expired(s.now().UTC()) {
		return &Session{State: StateExpired, Record: rec, svc: s}
	}
	if err := s.store.IncrementAccess(ctx, id); err != nil {
		s.log.Warn("access count not incremented", "selection", id, "error", err)
	} else {
		rec.AccessCount++
	}
	return &Session{State: StateReady, Record: rec, svc: s}
}

// RenderPages rasterizes every recorded page in stored order, one at a time.
// onProgress, when non-nil, is invoked after each page with the running count.
// Per-page failures yield placeholders; only the inability to obtain the
// source document at all is an error.
func (sess *Session) RenderPages(ctx context.Context, onProgress func(done, total int)) ([]Asset, error) {
	if sess.State != StateReady {
		return nil, fmt.Errorf("session not ready (state %s)", sess.State)
	}
	rec := sess.Record
	total := len(rec.SelectedPages)

	doc, scope, err := sess.svc.openDocument(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer scope.Close()
	defer doc.Close()

	assets := make([]Asset, 0, total)
	for i, page := range rec.SelectedPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		assets = append(assets, sess.svc.renderOne(doc, scope, page))
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}
	return assets, nil
}

// RenderPage rasterizes a single entry of the stored selection (0-based index
// into SelectedPages).
func (sess *Session) RenderPage(ctx context.Context, index int) (Asset, error) {
	if sess.State != StateReady {
		return Asset{}, fmt.Errorf("session not ready (state %s)", sess.State)
	}
	rec := sess.Record
	if index < 0 || index >= len(rec.SelectedPages) {
		return Asset{}, fmt.Errorf("page index %d out of range", index)
	}
	doc, scope, err := sess.svc.openDocument(ctx, rec)
	if err != nil {
		return Asset{}, err
	}
	defer scope.Close()
	defer doc.Close()
	return sess.svc.renderOne(doc, scope, rec.SelectedPages[index]), nil
}

// openDocument fetches the source through the proxy fetcher into a fresh
// scratch scope and opens it with the renderer. The scope lives until the
// caller closes it.
func (s *Service) openDocument(ctx context.Context, rec *model.SelectionRecord) (raster.Document, *scratch.Scope, error) {
	if rec.SourceURL == "" {
		return nil, nil, fmt.Errorf("selection has no source document (pages were supplied pre-rendered)")
	}
	scope, err := s.scratch.OpenScope("view-" + uuid.NewString())
	if err != nil {
		return nil, nil, err
	}
	data, err := s.fetcher.Fetch(ctx, rec.SourceURL)
	if err != nil {
		scope.Close()
		return nil, nil, err
	}
	path, err := scope.WriteFile("source.pdf", data)
	if err != nil {
		scope.Close()
		return nil, nil, err
	}
	doc, err := s.renderer.Open(path)
	if err != nil {
		scope.Close()
		return nil, nil, err
	}
	return doc, scope, nil
}

func (s *Service) renderOne(doc raster.Document, scope *scratch.Scope, page int) Asset {
	fail := func(err error) Asset {
		s.log.Warn("viewer page render failed", "page", page, "error", err)
		return Asset{Page: page, Name: fmt.Sprintf("page-%d-unavailable", page), Placeholder: true}
	}
	if total := doc.PageCount(); page < 1 || (total > 0 && page > total) {
		return fail(fmt.Errorf("page %d out of range", page))
	}
	img, err := doc.RenderPage(page)
	if err != nil {
		return fail(err)
	}
	name := fmt.Sprintf("page-%d.png", page)
	f, err := os.Create(scope.File(name))
	if err != nil {
		return fail(err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fail(err)
	}
	f.Close()
	data, err := os.ReadFile(scope.File(name))
	if err != nil {
		return fail(err)
	}
	return Asset{Page: page, Name: name, Data: data}
}
