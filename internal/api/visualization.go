package api

import (
	"bytes"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/qbyte.report/internal/chart"
	"github.com/banshee-data/qbyte.report/internal/httputil"
	"github.com/banshee-data/qbyte.report/internal/reg"
)

// showVisualization renders a static PNG of the requested log's cumulative
// deviation and confidence envelope.
func (s *Server) showVisualization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := s.logPath(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	summary, err := reg.AnalyzeFile(path, 0)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if summary.Events.Trials == 0 {
		httputil.BadRequest(w, "no trial data in file")
		return
	}

	// Render to a buffer first so a plot failure still yields a clean
	// JSON error instead of a truncated image body.
	var buf bytes.Buffer
	title := "Qbyte Data Analysis: " + filepath.Base(path)
	if err := chart.WritePNG(summary, title, &buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// showChart renders an interactive HTML chart of the same series.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := s.logPath(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	summary, err := reg.AnalyzeFile(path, 0)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if summary.Events.Trials == 0 {
		httputil.BadRequest(w, "no trial data in file")
		return
	}

	var buf bytes.Buffer
	if err := chart.WriteHTML(summary, filepath.Base(path), &buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
