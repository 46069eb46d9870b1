// Package pipeline drives one page delivery request from intake to email
// dispatch. Steps run in sequence; fatal failures short-circuit while
// per-page failures accumulate into a side list. Scratch cleanup runs on
// every exit path.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/mail"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/raster"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/selection"
)

// Request is a validated-on-entry page delivery request.
type Request struct {
	Email         string
	ProductID     string
	SourceURL     string
	SourceName    string
	SelectedPages []int
	// PageImages holds pre-rendered data URLs; when present, fetch and
	// render are skipped entirely.
	PageImages []string
}

// Outcome summarizes a completed run. PageFailures may be non-empty on a
// successful run (partial success).
type Outcome struct {
	SelectionID    string
	ViewURL        string
	MessageID      string
	SentAt         time.Time
	ImagesAttached int
	PageFailures   []model.PageFailure
}

// Rasterizer is the render-mode entry point; *raster.Service implements it.
type Rasterizer interface {
	Rasterize(ctx context.Context, docPath string, pages []int, scope *scratch.Scope) (*raster.Result, error)
}

// Sender dispatches the assembled email; *mail.Mailer implements it.
type Sender interface {
	Send(ctx context.Context, content *mail.Content) (string, error)
}

// Pipeline holds the collaborators for the delivery flow. All dependencies
// are injected at construction; nothing is reached through ambient state.
type Pipeline struct {
	cfg     *config.Config
	scratch *scratch.Manager
	fetcher fetch.Fetcher
	raster  Rasterizer
	store   selection.Store
	sender  Sender
	log     *slog.Logger

	// probe validates fetched bytes and reports the page count; tests
	// substitute it to avoid needing real PDF fixtures.
	probe func(source string, data []byte) (int, error)
}

// New wires a Pipeline.
func New(cfg *config.Config, mgr *scratch.Manager, fetcher fetch.Fetcher, rast Rasterizer, store selection.Store, sender Sender, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		scratch: mgr,
		fetcher: fetcher,
		raster:  rast,
		store:   store,
		sender:  sender,
		log:     log,
		probe:   fetch.Probe,
	}
}

// Run executes the delivery flow for one request. It returns a fatal error
// (ValidationError, fetch.Error, ConversionError, mail.DeliveryError) or an
// Outcome; storage failures are logged and absorbed.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Outcome, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	scope, err := p.scratch.OpenScope(jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			p.log.Warn("scratch cleanup failed", "job", jobID, "error", cerr)
		}
	}()
	log := p.log.With("job", jobID, "email", req.Email)

	result, err := p.producePages(ctx, req, scope, log)
	if err != nil {
		return nil, err
	}
	if len(result.Assets) == 0 {
		return nil, &ConversionError{Failures: result.Failures}
	}

	// The record is persisted before delivery and independent of its
	// outcome; a failure here only costs the shareable link.
	record := model.NewSelectionRecord(req.Email, req.ProductID, req.SourceURL, req.SourceName, req.SelectedPages)
	stored := true
	if err := p.store.Create(ctx, record); err != nil {
		stored = false
		log.Error("selection record not persisted, continuing without link", "error", &StorageError{Err: err})
	}

	content := &mail.Content{
		Recipient:  req.Email,
		SourceName: req.SourceName,
		Pages:      req.SelectedPages,
		Assets:     result.Assets,
		ExpiresAt:  record.ExpiresAt,
	}
	if stored {
		content.ViewURL = p.cfg.ViewURL(record.ID)
		content.BulkURL = content.ViewURL + "?download=all"
	}
	msgID, err := p.sender.Send(ctx, content)
	if err != nil {
		return nil, err
	}
	log.Info("pages delivered", "attached", len(result.Assets), "failed", len(result.Failures), "selection", record.ID)

	return &Outcome{
		SelectionID:    record.ID,
		ViewURL:        content.ViewURL,
		MessageID:      msgID,
		SentAt:         time.Now().UTC(),
		ImagesAttached: len(result.Assets),
		PageFailures:   result.Failures,
	}, nil
}

func (p *Pipeline) validate(req *Request) error {
	if req.Email == "" {
		return &ValidationError{Msg: "email is required"}
	}
	if len(req.SelectedPages) == 0 {
		return &ValidationError{Msg: "selectedPages must not be empty"}
	}
	if max := p.cfg.MaxPages; max > 0 && len(req.SelectedPages) > max {
		return &ValidationError{Msg: "too many pages selected"}
	}
	if len(req.PageImages) == 0 && req.SourceURL == "" {
		return &ValidationError{Msg: "pdfUrl is required when no page images are supplied"}
	}
	return nil
}

// producePages yields the per-page assets, either by persisting pre-rendered
// images or by fetching the source and rasterizing.
func (p *Pipeline) producePages(ctx context.Context, req *Request, scope *scratch.Scope, log *slog.Logger) (*raster.Result, error) {
	if len(req.PageImages) > 0 {
		return raster.FromDataURLs(req.SelectedPages, req.PageImages, scope), nil
	}

	data, err := p.fetcher.Fetch(ctx, req.SourceURL)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &fetch.Error{Source: req.SourceURL, Err: err}
	}
	pageCount, err := p.probe(req.SourceURL, data)
	if err != nil {
		return nil, err
	}
	docPath, err := scope.WriteFile("source.pdf", data)
	if err != nil {
		return nil, err
	}
	log.Info("source fetched", "bytes", len(data), "pages", pageCount)
	return p.raster.Rasterize(ctx, docPath, req.SelectedPages, scope)
}
