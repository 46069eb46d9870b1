// Package server wires the HTTP surface: the delivery API, the document
// proxy, and the viewer routes backed by the shareable selection links.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/fetch"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/mail"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/pipeline"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/signing"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/viewer"
)

// Runner executes delivery requests; *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req *pipeline.Request) (*pipeline.Outcome, error)
}

// Server hosts the HTTP handlers.
type Server struct {
	cfg    *config.Config
	pipe   Runner
	viewer *viewer.Service
	signer *signing.Signer // nil means the proxy accepts unsigned URLs
	proxy  *http.Client
	log    *slog.Logger
}

// New constructs a Server.
func New(cfg *config.Config, pipe Runner, vw *viewer.Service, signer *signing.Signer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		pipe:   pipe,
		viewer: vw,
		signer: signer,
		proxy:  &http.Client{Timeout: cfg.FetchTimeout},
		log:    log,
	}
}

// Routes assembles the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/send-pdf-pages", s.handleSendPages)
	r.Get("/pdf-proxy", s.handleProxy)
	r.Route("/view/{selectionID}", func(r chi.Router) {
		r.Get("/", s.handleViewer)
		r.Get("/page/{index}", s.handleViewerPage)
		r.Get("/download", s.handleViewerDownload)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.Info("listening", "address", s.cfg.Address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendPagesRequest mirrors the public API body.
type sendPagesRequest struct {
	Email         string   `json:"email"`
	ProductID     string   `json:"productId,omitempty"`
	PDFURL        string   `json:"pdfUrl,omitempty"`
	PDFName       string   `json:"pdfName,omitempty"`
	SelectedPages []int    `json:"selectedPages"`
	PageImages    []string `json:"pageImages,omitempty"`
}

type sendPagesDetails struct {
	Email          string    `json:"email"`
	Pages          []int     `json:"pages"`
	ViewURL        string    `json:"viewUrl,omitempty"`
	SelectionID    string    `json:"selectionId"`
	SentAt         time.Time `json:"sentAt"`
	ImagesAttached int       `json:"imagesAttached"`
}

type sendPagesResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Details sendPagesDetails `json:"details"`
}

func (s *Server) handleSendPages(w http.ResponseWriter, r *http.Request) {
	var body sendPagesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := s.pipe.Run(r.Context(), &pipeline.Request{
		Email:         body.Email,
		ProductID:     body.ProductID,
		SourceURL:     body.PDFURL,
		SourceName:    body.PDFName,
		SelectedPages: body.SelectedPages,
		PageImages:    body.PageImages,
	})
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sendPagesResponse{
		Success: true,
		Message: fmt.Sprintf("%d page(s) sent to %s", out.ImagesAttached, body.Email),
		Details: sendPagesDetails{
			Email:          body.Email,
			Pages:          body.SelectedPages,
			ViewURL:        out.ViewURL,
			SelectionID:    out.SelectionID,
			SentAt:         out.SentAt,
			ImagesAttached: out.ImagesAttached,
		},
	})
}

// respondPipelineError maps the error taxonomy onto HTTP statuses: malformed
// requests are the caller's fault, everything else is a 500 with the
// underlying message.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		respondError(w, http.StatusBadRequest, ve.Error())
		return
	}
	var fe *fetch.Error
	if errors.As(err, &fe) {
		respondError(w, http.StatusInternalServerError, fe.Error())
		return
	}
	var ce *pipeline.ConversionError
	if errors.As(err, &ce) {
		respondError(w, http.StatusInternalServerError, ce.Error())
		return
	}
	var de *mail.DeliveryError
	if errors.As(err, &de) {
		respondError(w, http.StatusInternalServerError, de.Error())
		return
	}
	s.log.Error("pipeline failed", "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

// handleProxy streams a remote document through with permissive CORS so the
// viewer can read sources that disallow cross-origin access. With a signer
// configured only URLs signed by this service are accepted.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		respondError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}
	if s.signer != nil {
		expires := r.URL.Query().Get("expires")
		sig := r.URL.Query().Get("sig")
		if !s.signer.Validate(raw, expires, sig) {
			respondError(w, http.StatusForbidden, "invalid or missing signature")
			return
		}
		exp, _ := strconv.ParseInt(expires, 10, 64)
		if time.Now().Unix() > exp {
			respondError(w, http.StatusForbidden, "signed url expired")
			return
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, raw, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid url")
		return
	}
	resp, err := s.proxy.Do(req)
	if err != nil {
		respondError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn("proxy stream interrupted", "url", raw, "error", err)
	}
}

// SignedProxyURL builds a proxy link for a source URL, signed when a signer
// is configured.
func (s *Server) SignedProxyURL(sourceURL string) string {
	v := url.Values{"url": {sourceURL}}
	if s.signer != nil {
		expires := time.Now().Add(s.cfg.FetchTimeout + time.Hour).Unix()
		v.Set("expires", strconv.FormatInt(expires, 10))
		v.Set("sig", s.signer.Sign(sourceURL, expires))
	}
	return s.cfg.PublicBaseURL + "/pdf-proxy?" + v.Encode()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}
