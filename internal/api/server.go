// Package api exposes the generation and analysis engines over HTTP. The
// handlers are thin: JSON envelopes around internal/reg plus an SSE transport
// for streaming runs.
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/qbyte.report/internal/httputil"
	"github.com/banshee-data/qbyte.report/internal/reg"
	"github.com/banshee-data/qbyte.report/internal/regdb"
	"github.com/banshee-data/qbyte.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server holds the shared state behind the HTTP handlers.
type Server struct {
	dataDir    string
	db         *regdb.DB
	clock      timeutil.Clock
	trialDelay time.Duration
	serialPath string // entropy device path for true-RNG runs; empty disables
}

// NewServer creates an API server over the given run data directory and
// catalog. serialPath may be empty when no entropy hardware is attached.
func NewServer(dataDir string, db *regdb.DB, serialPath string) *Server {
	return &Server{
		dataDir:    dataDir,
		db:         db,
		clock:      timeutil.RealClock{},
		trialDelay: reg.DefaultTrialDelay,
		serialPath: serialPath,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// CORSMiddleware allows browser frontends on other origins to call the API.
// The surface is read-only GETs, so a permissive policy is fine.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeMux wires up the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files", s.listFiles)
	mux.HandleFunc("/api/file", s.showFile)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/visualization", s.showVisualization)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/generate", s.generate)
	mux.HandleFunc("/", s.home)
	return mux
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"name":        "QByte REG API",
		"description": "random event generation and trial log analysis",
		"endpoints": map[string]string{
			"/api/files":         "list available trial log files",
			"/api/file":          "decoded parameters and data sample for ?file=",
			"/api/stats":         "statistical analysis for ?file=",
			"/api/visualization": "cumulative deviation PNG for ?file=",
			"/api/chart":         "interactive HTML chart for ?file=",
			"/api/runs":          "catalogued generation runs",
			"/api/generate":      "start a generation run, streamed as SSE",
		},
	})
}

// logPath validates a caller-supplied log file name. Only flat QB_*.txt
// names inside the data directory are served.
func (s *Server) logPath(r *http.Request) (string, error) {
	name := r.URL.Query().Get("file")
	if name == "" {
		return "", fmt.Errorf("missing 'file' parameter")
	}
	if filepath.Base(name) != name || !strings.HasPrefix(name, "QB_") || !strings.HasSuffix(name, ".txt") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(s.dataDir, name), nil
}

type fileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified_ms"`
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list data directory: %v", err))
		return
	}

	files := []fileInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "QB_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{Name: name, Size: info.Size(), Modified: info.ModTime().UnixMilli()})
	}
	httputil.WriteJSONOK(w, files)
}

func (s *Server) showFile(w http.ResponseWriter, r *http.Request) {
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

	// Trials may exceed the decoded series on long logs; sample from what
	// was materialized.
	sample := len(summary.Timestamps)
	if sample > 100 {
		sample = 100
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"filename":   filepath.Base(path),
		"parameters": summary.Params,
		"data_sample": map[string]interface{}{
			"timestamps": summary.Timestamps[:sample],
			"bit_sums":   summary.BitSums[:sample],
		},
		"total_trials": summary.Events.Trials,
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
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
	httputil.WriteJSONOK(w, map[string]interface{}{
		"filename":   filepath.Base(path),
		"parameters": summary.Params,
		"statistics": summary.Stats,
		"events":     summary.Events,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	runs, err := s.db.ListRuns()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []regdb.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reg.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, reg.ErrInvalidParams):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}
