package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/pipeline"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/raster"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/selection"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/signing"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/viewer"
)

type stubRunner struct {
	out *pipeline.Outcome
	err error
	got *pipeline.Request
}

func (s *stubRunner) Run(_ context.Context, req *pipeline.Request) (*pipeline.Outcome, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte("%PDF-1.4 pretend"), nil
}

type stubRenderer struct{ pageCount int }

func (s *stubRenderer) Open(string) (raster.Document, error) {
	return &stubDocument{pages: s.pageCount}, nil
}

type stubDocument struct{ pages int }

func (d *stubDocument) PageCount() int { return d.pages }
func (d *stubDocument) RenderPage(page int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}
func (d *stubDocument) Close() error { return nil }

type env struct {
	srv    *Server
	store  *selection.MemoryStore
	runner *stubRunner
}

func newEnv(t *testing.T, signer *signing.Signer) *env {
	t.Helper()
	cfg := &config.Config{
		Address:       ":0",
		PublicBaseURL: "https://shop.example.com",
		FetchTimeout:  5 * time.Second,
	}
	store := selection.NewMemoryStore()
	mgr, err := scratch.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("scratch manager: %v", err)
	}
	vw := viewer.NewService(store, stubFetcher{}, &stubRenderer{pageCount: 10}, mgr, nil)
	runner := &stubRunner{}
	return &env{
		srv:    New(cfg, runner, vw, signer, nil),
		store:  store,
		runner: runner,
	}
}

func (e *env) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendPagesHappyPath(t *testing.T) {
	e := newEnv(t, nil)
	e.runner.out = &pipeline.Outcome{
		SelectionID:    "sel-1",
		ViewURL:        "https://shop.example.com/view/sel-1",
		MessageID:      "m@pagesend",
		SentAt:         time.Now(),
		ImagesAttached: 3,
	}
	rec := e.do(t, http.MethodPost, "/api/send-pdf-pages",
		`{"email":"a@b.com","pdfUrl":"https://x/doc.pdf","pdfName":"doc.pdf","selectedPages":[2,5,9]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp sendPagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Details.SelectionID != "sel-1" || resp.Details.ImagesAttached != 3 {
		t.Fatalf("response = %+v", resp)
	}
	if e.runner.got.SourceURL != "https://x/doc.pdf" || len(e.runner.got.SelectedPages) != 3 {
		t.Fatalf("pipeline request = %+v", e.runner.got)
	}
}

func TestSendPagesErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &pipeline.ValidationError{Msg: "email is required"}, http.StatusBadRequest},
		{"fetch", &fetch.Error{Source: "https://x/doc.pdf", Status: 404}, http.StatusInternalServerError},
		{"conversion", &pipeline.ConversionError{Failures: []model.PageFailure{{Page: 1, Reason: "bad"}}}, http.StatusInternalServerError},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.runner.err = tc.err
			rec := e.do(t, http.MethodPost, "/api/send-pdf-pages",
				`{"email":"a@b.com","pdfUrl":"https://x/doc.pdf","selectedPages":[1]}`)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] == "" {
				t.Fatalf("error body missing: %s", rec.Body)
			}
		})
	}
}

func TestSendPagesRejectsBadJSON(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/send-pdf-pages", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProxyForwardsUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 body"))
	}))
	defer upstream.Close()

	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/pdf-proxy?url="+upstream.URL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content-type = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "%PDF-1.4") {
		t.Fatalf("body = %q", rec.Body)
	}
}

func TestProxyMirrorsUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/pdf-proxy?url="+upstream.URL, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want upstream 404", rec.Code)
	}
}

func TestProxyRejectsBadInput(t *testing.T) {
	e := newEnv(t, nil)
	if rec := e.do(t, http.MethodGet, "/pdf-proxy", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url: status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/pdf-proxy?url=ftp%3A%2F%2Fx%2Fdoc.pdf", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("ftp scheme: status = %d", rec.Code)
	}
}

func TestProxySignatureEnforcement(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	signer := signing.NewSigner([]byte("secret"))
	e := newEnv(t, signer)

	rec := e.do(t, http.MethodGet, "/pdf-proxy?url="+upstream.URL, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unsigned request: status = %d, want 403", rec.Code)
	}

	expires := time.Now().Add(time.Hour).Unix()
	sig := signer.Sign(upstream.URL, expires)
	signed := fmt.Sprintf("/pdf-proxy?url=%s&expires=%d&sig=%s", upstream.URL, expires, sig)
	if rec := e.do(t, http.MethodGet, signed, ""); rec.Code != http.StatusOK {
		t.Fatalf("signed request: status = %d, body %s", rec.Code, rec.Body)
	}

	stale := time.Now().Add(-time.Hour).Unix()
	staleSig := signer.Sign(upstream.URL, stale)
	expired := fmt.Sprintf("/pdf-proxy?url=%s&expires=%d&sig=%s", upstream.URL, stale, staleSig)
	if rec := e.do(t, http.MethodGet, expired, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expired signature: status = %d, want 403", rec.Code)
	}
}

func seedRecord(t *testing.T, store *selection.MemoryStore, pages []int) *model.SelectionRecord {
	t.Helper()
	rec := model.NewSelectionRecord("a@b.com", "", "https://x/doc.pdf", "doc.pdf", pages)
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestViewerPageRendersSelection(t *testing.T) {
	e := newEnv(t, nil)
	rec := seedRecord(t, e.store, []int{2, 5})

	resp := e.do(t, http.MethodGet, "/view/"+rec.ID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "Page 2") || !strings.Contains(body, "Page 5") {
		t.Fatalf("viewer body missing pages: %s", body)
	}
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Fatalf("viewer body has no inline images")
	}
	stored, _ := e.store.Get(context.Background(), rec.ID)
	if stored.AccessCount != 1 {
		t.Fatalf("accessCount = %d, want 1", stored.AccessCount)
	}
}

func TestViewerUnknownAndExpired(t *testing.T) {
	e := newEnv(t, nil)
	if rec := e.do(t, http.MethodGet, "/view/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}

	old := model.NewSelectionRecord("a@b.com", "", "https://x/doc.pdf", "doc.pdf", []int{1})
	old.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if err := e.store.Create(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := e.do(t, http.MethodGet, "/view/"+old.ID, "")
	if rec.Code != http.StatusGone {
		t.Fatalf("expired link: status = %d, want 410", rec.Code)
	}
	stored, _ := e.store.Get(context.Background(), old.ID)
	if stored.AccessCount != 0 {
		t.Fatalf("expired load must not count accesses")
	}
}

func TestViewerSinglePageDownload(t *testing.T) {
	e := newEnv(t, nil)
	rec := seedRecord(t, e.store, []int{7, 3})

	resp := e.do(t, http.MethodGet, "/view/"+rec.ID+"/page/1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content-type = %q", got)
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "page-3.png") {
		t.Fatalf("disposition = %q", resp.Header().Get("Content-Disposition"))
	}

	if resp := e.do(t, http.MethodGet, "/view/"+rec.ID+"/page/9", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("out-of-range index: status = %d", resp.Code)
	}
	if resp := e.do(t, http.MethodGet, "/view/"+rec.ID+"/page/x", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric index: status = %d", resp.Code)
	}
}

func TestViewerZipDownload(t *testing.T) {
	e := newEnv(t, nil)
	rec := seedRecord(t, e.store, []int{2, 5})

	for _, target := range []string{
		"/view/" + rec.ID + "/download",
		"/view/" + rec.ID + "?download=all",
	} {
		resp := e.do(t, http.MethodGet, target, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, resp.Code)
		}
		if got := resp.Header().Get("Content-Type"); got != "application/zip" {
			t.Fatalf("%s: content-type = %q", target, got)
		}
		if !strings.Contains(resp.Header().Get("Content-Disposition"), "doc-pages-") {
			t.Fatalf("%s: disposition = %q", target, resp.Header().Get("Content-Disposition"))
		}
	}
}

func TestSignedProxyURL(t *testing.T) {
	signer := signing.NewSigner([]byte("secret"))
	e := newEnv(t, signer)

	u := e.srv.SignedProxyURL("https://cdn.example.com/doc.pdf")
	if !strings.HasPrefix(u, "https://shop.example.com/pdf-proxy?") {
		t.Fatalf("url = %q", u)
	}
	if !strings.Contains(u, "sig=") || !strings.Contains(u, "expires=") {
		t.Fatalf("signed url missing parameters: %q", u)
	}

	plain := newEnv(t, nil).srv.SignedProxyURL("https://cdn.example.com/doc.pdf")
	if strings.Contains(plain, "sig=") {
		t.Fatalf("unsigned url must not carry a signature: %q", plain)
	}
}
