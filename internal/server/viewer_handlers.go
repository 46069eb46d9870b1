package server

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/viewer"
)

var viewerTmpl = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2rem auto; color: #222; }
.page { margin-bottom: 2rem; text-align: center; }
.page img { max-width: 100%; border: 1px solid #ddd; box-shadow: 0 1px 4px rgba(0,0,0,.15); }
.placeholder { padding: 4rem 1rem; background: #f5f5f5; border: 1px dashed #bbb; color: #888; }
.meta { color: #666; font-size: .9rem; margin-bottom: 1.5rem; }
.actions a { margin-right: 1rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{len .Pages}} page(s) &middot; link expires {{.Expires}}</p>
<p class="actions"><a href="{{.DownloadURL}}">Download all pages (zip)</a></p>
{{range .Pages}}
<div class="page">
  <h3>Page {{.Page}}</h3>
  {{if .Placeholder}}
  <div class="placeholder">This page could not be rendered.</div>
  {{else}}
  <img src="{{.Src}}" alt="Page {{.Page}}">
  <p><a href="{{.Href}}" download="{{.Name}}">Download page {{.Page}}</a></p>
  {{end}}
</div>
{{end}}
</body>
</html>
`))

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Heading}}</title>
<style>body { font-family: sans-serif; max-width: 640px; margin: 4rem auto; color: #222; text-align: center; }</style>
</head>
<body><h1>{{.Heading}}</h1><p>{{.Detail}}</p></body>
</html>
`))

type viewerPageData struct {
	Page        int
	Name        string
	Src         template.URL
	Href        string
	Placeholder bool
}

type viewerData struct {
	Title       string
	Expires     string
	DownloadURL string
	Pages       []viewerPageData
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "selectionID")
	sess := s.viewer.Load(r.Context(), id)
	if !s.requireReady(w, sess) {
		return
	}
	if r.URL.Query().Get("download") == "all" {
		s.serveZip(w, r, sess)
		return
	}

	assets, err := sess.RenderPages(r.Context(), nil)
	if err != nil {
		s.log.Error("viewer render failed", "selection", id, "error", err)
		s.renderStatus(w, http.StatusInternalServerError, "Something went wrong", "The selected pages could not be rendered. Please try again later.")
		return
	}

	data := viewerData{
		Title:       viewerTitle(sess),
		Expires:     sess.Record.ExpiresAt.Format("January 2, 2006"),
		DownloadURL: "/view/" + id + "/download",
	}
	for i, a := range assets {
		p := viewerPageData{Page: a.Page, Name: a.Name, Placeholder: a.Placeholder}
		if !a.Placeholder {
			p.Src = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(a.Data))
			p.Href = fmt.Sprintf("/view/%s/page/%d", id, i)
		}
		data.Pages = append(data.Pages, p)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewerTmpl.Execute(w, data); err != nil {
		s.log.Warn("viewer template", "error", err)
	}
}

func (s *Server) handleViewerPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "selectionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "page index must be a number")
		return
	}
	sess := s.viewer.Load(r.Context(), id)
	if !s.requireReady(w, sess) {
		return
	}
	asset, err := sess.RenderPage(r.Context(), index)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if asset.Placeholder {
		respondError(w, http.StatusNotFound, fmt.Sprintf("page %d could not be rendered", asset.Page))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="`+asset.Name+`"`)
	_, _ = w.Write(asset.Data)
}

func (s *Server) handleViewerDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "selectionID")
	sess := s.viewer.Load(r.Context(), id)
	if !s.requireReady(w, sess) {
		return
	}
	s.serveZip(w, r, sess)
}

// serveZip renders every recorded page and streams the successful ones as a
// zip archive.
func (s *Server) serveZip(w http.ResponseWriter, r *http.Request, sess *viewer.Session) {
	assets, err := sess.RenderPages(r.Context(), nil)
	if err != nil {
		s.log.Error("viewer bulk render failed", "error", err)
		respondError(w, http.StatusInternalServerError, "pages could not be rendered")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+zipName(sess)+`"`)
	zw := zip.NewWriter(w)
	_, err = viewer.DownloadAll(r.Context(), assets, func(a viewer.Asset) error {
		entry, err := zw.Create(a.Name)
		if err != nil {
			return err
		}
		_, err = entry.Write(a.Data)
		return err
	}, viewer.BulkOptions{})
	if err != nil {
		s.log.Warn("zip stream interrupted", "error", err)
	}
	if err := zw.Close(); err != nil {
		s.log.Warn("zip close", "error", err)
	}
}

// requireReady writes the terminal page for non-ready sessions and reports
// whether the handler may proceed.
func (s *Server) requireReady(w http.ResponseWriter, sess *viewer.Session) bool {
	switch sess.State {
	case viewer.StateReady:
		return true
	case viewer.StateExpired:
		s.renderStatus(w, http.StatusGone, "Link expired", "This share link expired "+sess.Record.ExpiresAt.Format("January 2, 2006")+". Ask the sender for a fresh one.")
	case viewer.StateNotFound:
		s.renderStatus(w, http.StatusNotFound, "Not found", "This share link does not exist. Check the address and try again.")
	default:
		s.log.Error("viewer load failed", "error", sess.Err)
		s.renderStatus(w, http.StatusInternalServerError, "Something went wrong", "The share link could not be loaded. Please try again later.")
	}
	return false
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, heading, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := statusTmpl.Execute(w, struct{ Heading, Detail string }{heading, detail}); err != nil {
		s.log.Warn("status template", "error", err)
	}
}

func viewerTitle(sess *viewer.Session) string {
	if sess.Record.SourceName != "" {
		return sess.Record.SourceName
	}
	return "Shared pages"
}

func zipName(sess *viewer.Session) string {
	base := strings.TrimSuffix(sess.Record.SourceName, ".pdf")
	if base == "" {
		base = "pages"
	}
	return base + "-pages-" + time.Now().Format("20060102") + ".zip"
}
