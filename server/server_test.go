package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/pipeline"
)

func setupRun(t *testing.T, outputDir, id string, withVideo bool) {
	t.Helper()
	runDir := filepath.Join(outputDir, id)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	summary := pipeline.Summary{RunID: id, Idea: "idea", ScenesExpected: 6, ScenesCompleted: 6}
	data, _ := json.Marshal(summary)
	if err := os.WriteFile(filepath.Join(runDir, "summary.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if withVideo {
		asmDir := filepath.Join(runDir, "assembly")
		if err := os.MkdirAll(asmDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(asmDir, "final_video.mp4"), []byte("video"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func testRouter(t *testing.T, outputDir string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return SetupRoutes(NewHandler(&config.Config{OutputDir: outputDir}, logger))
}

func TestListRuns(t *testing.T) {
	dir := t.TempDir()
	setupRun(t, dir, "run-a", true)
	setupRun(t, dir, "run-b", false)
	// A directory without a summary is not a run.
	if err := os.MkdirAll(filepath.Join(dir, "stray"), 0755); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	testRouter(t, dir).ServeHTTP(rr, httptest.NewRequest("GET", "/runs", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var runs []struct {
		ID       string `json:"id"`
		HasVideo bool   `json:"has_video"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestGetRun(t *testing.T) {
	dir := t.TempDir()
	setupRun(t, dir, "run-a", false)

	rr := httptest.NewRecorder()
	testRouter(t, dir).ServeHTTP(rr, httptest.NewRequest("GET", "/runs/run-a", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var summary pipeline.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if summary.RunID != "run-a" || summary.ScenesCompleted != 6 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGetRunNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t, t.TempDir()).ServeHTTP(rr, httptest.NewRequest("GET", "/runs/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestGetVideo(t *testing.T) {
	dir := t.TempDir()
	setupRun(t, dir, "run-a", true)
	setupRun(t, dir, "run-b", false)

	rr := httptest.NewRecorder()
	router := testRouter(t, dir)
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/runs/run-a/video", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != "video" {
		t.Errorf("body = %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/runs/run-b/video", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("videoless run: status = %d, want 404", rr.Code)
	}
}

func TestRunIDCannotEscapeOutputDir(t *testing.T) {
	dir := t.TempDir()
	setupRun(t, dir, "run-a", false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/runs/"+filepath.Join("..", "etc"), nil)
	testRouter(t, dir).ServeHTTP(rr, req)
	if rr.Code == http.StatusOK {
		t.Error("traversal id must be rejected")
	}
}
