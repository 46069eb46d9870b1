package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/mail"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/raster"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/selection"
)

type stubFetcher struct {
	data []byte
	err  error
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

// stubRasterizer succeeds on every page not in fail, writing a real file into
// the scope so downstream consumers see the same shape as production.
type stubRasterizer struct {
	fail map[int]bool
}

func (s *stubRasterizer) Rasterize(_ context.Context, _ string, pages []int, scope *scratch.Scope) (*raster.Result, error) {
	res := &raster.Result{}
	for _, p := range pages {
		if s.fail[p] {
			res.Failures = append(res.Failures, model.PageFailure{Page: p, Reason: "render blew up"})
			continue
		}
		name := fmt.Sprintf("page-%d.png", p)
		path, err := scope.WriteFile(name, []byte("png"))
		if err != nil {
			return nil, err
		}
		res.Assets = append(res.Assets, model.PageAsset{Page: p, Name: name, Path: path})
	}
	return res, nil
}

type stubSender struct {
	err  error
	last *mail.Content
}

func (s *stubSender) Send(_ context.Context, c *mail.Content) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.last = c
	return "msg-1@pagesend", nil
}

type failingStore struct{}

func (failingStore) Create(context.Context, *model.SelectionRecord) error {
	return fmt.Errorf("database down")
}
func (failingStore) Get(context.Context, string) (*model.SelectionRecord, error) {
	return nil, selection.ErrNotFound
}
func (failingStore) IncrementAccess(context.Context, string) error {
	return fmt.Errorf("database down")
}

type fixture struct {
	p       *Pipeline
	base    string
	store   *selection.MemoryStore
	sender  *stubSender
	fetcher *stubFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	mgr, err := scratch.NewManager(base)
	if err != nil {
		t.Fatalf("scratch manager: %v", err)
	}
	cfg := &config.Config{PublicBaseURL: "https://shop.example.com", MaxPages: 50}
	store := selection.NewMemoryStore()
	sender := &stubSender{}
	fetcher := &stubFetcher{data: []byte("%PDF-1.4 pretend")}
	p := New(cfg, mgr, fetcher, &stubRasterizer{}, store, sender, nil)
	p.probe = func(string, []byte) (int, error) { return 10, nil }
	return &fixture{p: p, base: base, store: store, sender: sender, fetcher: fetcher}
}

func (f *fixture) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.base)
	if err != nil {
		t.Fatalf("read scratch base: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch base not cleaned, %d entries remain", len(entries))
	}
}

func request() *Request {
	return &Request{
		Email:         "a@b.com",
		SourceURL:     "https://x/doc.pdf",
		SourceName:    "doc.pdf",
		SelectedPages: []int{2, 5, 9},
	}
}

func TestRunDeliversAllPages(t *testing.T) {
	f := newFixture(t)
	out, err := f.p.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.ImagesAttached != 3 {
		t.Fatalf("imagesAttached = %d, want 3", out.ImagesAttached)
	}
	if out.SelectionID == "" || !strings.Contains(out.ViewURL, out.SelectionID) {
		t.Fatalf("viewURL %q must contain selection id %q", out.ViewURL, out.SelectionID)
	}
	rec, err := f.store.Get(context.Background(), out.SelectionID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if want := rec.CreatedAt.Add(model.LinkTTL); !rec.ExpiresAt.Equal(want) {
		t.Fatalf("expiry not exactly 7 days after creation")
	}
	if f.sender.last == nil || len(f.sender.last.Assets) != 3 {
		t.Fatalf("sender did not receive 3 assets")
	}
	f.assertScratchClean(t)
}

func TestRunPartialFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.p.raster = &stubRasterizer{fail: map[int]bool{5: true}}
	out, err := f.p.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.ImagesAttached != 2 {
		t.Fatalf("imagesAttached = %d, want 2", out.ImagesAttached)
	}
	if len(out.PageFailures) != 1 || out.PageFailures[0].Page != 5 {
		t.Fatalf("pageFailures = %+v", out.PageFailures)
	}
	f.assertScratchClean(t)
}

func TestRunFetchFailureIsFatalAndPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = &fetch.Error{Source: "https://x/doc.pdf", Status: 404}
	_, err := f.p.Run(context.Background(), request())
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected fetch.Error, got %v", err)
	}
	if f.sender.last != nil {
		t.Fatalf("no email may be sent after a fetch failure")
	}
	f.assertScratchClean(t)
}

func TestRunAllPagesFailedIsConversionError(t *testing.T) {
	f := newFixture(t)
	f.p.raster = &stubRasterizer{fail: map[int]bool{2: true, 5: true, 9: true}}
	_, err := f.p.Run(context.Background(), request())
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if len(ce.Failures) != 3 {
		t.Fatalf("failures = %d, want 3", len(ce.Failures))
	}
	f.assertScratchClean(t)
}

func TestRunStorageFailureContinuesWithoutLink(t *testing.T) {
	f := newFixture(t)
	f.p.store = failingStore{}
	out, err := f.p.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("storage failure must not abort the run: %v", err)
	}
	if out.ViewURL != "" {
		t.Fatalf("viewURL should be empty when the record was not persisted")
	}
	if f.sender.last == nil || f.sender.last.ViewURL != "" {
		t.Fatalf("email must omit the viewer link when the record was not persisted")
	}
	f.assertScratchClean(t)
}

func TestRunDeliveryFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.sender.err = &mail.DeliveryError{Stage: "verify", Err: fmt.Errorf("connection refused")}
	_, err := f.p.Run(context.Background(), request())
	var de *mail.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	f.assertScratchClean(t)
}

func TestRunPreRenderedSkipsFetch(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = fmt.Errorf("fetch must not be called")
	req := request()
	req.SourceURL = ""
	req.SelectedPages = []int{1, 2}
	req.PageImages = []string{
		"data:image/png;base64,cGFnZTE=",
		"data:image/png;base64,cGFnZTI=",
	}
	out, err := f.p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.ImagesAttached != 2 {
		t.Fatalf("imagesAttached = %d, want 2", out.ImagesAttached)
	}
	f.assertScratchClean(t)
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		mut  func(*Request)
	}{
		{"missing email", func(r *Request) { r.Email = "" }},
		{"empty pages", func(r *Request) { r.SelectedPages = nil }},
		{"no source or images", func(r *Request) { r.SourceURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request()
			tc.mut(req)
			_, err := f.p.Run(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}
