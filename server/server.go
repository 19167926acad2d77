// Package server exposes finished runs over HTTP: run listings, per-run
// summaries, and the final video files themselves.
package server

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/pipeline"
)

type Handler struct {
	outputDir string
	logger    *slog.Logger
}

func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{outputDir: cfg.OutputDir, logger: logger}
}

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	r.HandleFunc("/runs/{id}/video", h.GetVideo).Methods("GET")

	return r
}

// runEntry is one row in the run listing.
type runEntry struct {
	ID       string `json:"id"`
	HasVideo bool   `json:"has_video"`
}

// ListRuns enumerates run directories that carry a summary.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.outputDir)
	if err != nil {
		h.logger.Error("Failed to read output directory", slog.String("error", err.Error()))
		http.Error(w, "output directory unavailable", http.StatusInternalServerError)
		return
	}

	runs := []runEntry{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(h.outputDir, e.Name())
		if _, err := os.Stat(filepath.Join(runDir, "summary.json")); err != nil {
			continue
		}
		runs = append(runs, runEntry{
			ID:       e.Name(),
			HasVideo: h.videoPath(runDir) != "",
		})
	}

	writeJSON(w, runs)
}

// GetRun returns a run's persisted summary.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runDir, ok := h.runDir(w, r)
	if !ok {
		return
	}

	data, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	var summary pipeline.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		h.logger.Error("Corrupt run summary", slog.String("error", err.Error()))
		http.Error(w, "corrupt run summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

// GetVideo streams the run's final video.
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	runDir, ok := h.runDir(w, r)
	if !ok {
		return
	}

	videoPath := h.videoPath(runDir)
	if videoPath == "" {
		http.Error(w, "no final video for this run", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, videoPath)
}

// runDir validates the run id and resolves it under the output directory.
// The id must be a plain directory name so a crafted id cannot escape.
func (h *Handler) runDir(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if id == "" || id != filepath.Base(id) || id[0] == '.' {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return "", false
	}
	runDir := filepath.Join(h.outputDir, id)
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		http.Error(w, "run not found", http.StatusNotFound)
		return "", false
	}
	return runDir, true
}

// videoPath finds the run's final artifact, long-form name first.
func (h *Handler) videoPath(runDir string) string {
	for _, name := range []string{"full_story.mp4", filepath.Join("assembly", "final_video.mp4")} {
		p := filepath.Join(runDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetupNegroni wraps the router with recovery and request logging.
func SetupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())
	n.UseHandler(r)
	return n
}

// ServeProduction runs behind autocert-managed TLS.
func ServeProduction(cfg *config.Config, n *negroni.Negroni) {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	// Port 80 answers ACME "http-01" challenges and redirects everything
	// else to HTTPS.
	go func() {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      autocertManager.HTTPHandler(nil),
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		err := srv.ListenAndServe()
		log.Fatal(err)
	}()

	tlsConfig := &tls.Config{
		GetCertificate:           autocertManager.GetCertificate,
		PreferServerCipherSuites: true,
		CurvePreferences:         []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      n,
		TLSConfig:    tlsConfig,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	err := srv.ListenAndServeTLS("", "") // Key and cert provided automatically by autocert.
	log.Fatal(err)
}

// ServeDevelopment runs plain HTTP for local use.
func ServeDevelopment(s *http.Server) {
	log.Fatal(s.ListenAndServe())
}
