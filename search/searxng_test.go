package search

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/storyreel/storyreel/config"
)

func testService(t *testing.T, baseURL string) *SearxNGService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSearxNGService(&config.Config{SearxNGURL: baseURL}, logger)
}

func TestSearchReturnsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"Lighthouse history","url":"https://example.com/a","content":"keepers of the coast"},
			{"title":"Second","url":"https://example.com/b","content":"more"},
			{"title":"Third","url":"https://example.com/c","content":"even more"}
		]}`))
	}))
	defer srv.Close()

	results := testService(t, srv.URL).Search(context.Background(), "lighthouses", 2)

	if len(results) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(results))
	}
	if results[0].Title != "Lighthouse history" || results[0].Snippet != "keepers of the coast" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestSearchNeverFails(t *testing.T) {
	// Unreachable server: empty results, no error, no panic.
	s := testService(t, "http://127.0.0.1:1")
	if results := s.Search(context.Background(), "anything", 5); results != nil {
		t.Errorf("expected nil results from an unreachable backend, got %v", results)
	}
}

func TestSearchHandlesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Probe succeeds so the search path itself is exercised.
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if results := testService(t, srv.URL).Search(context.Background(), "anything", 5); results != nil {
		t.Errorf("expected nil results on server error, got %v", results)
	}
}

func TestExpandContentExtractsMainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<nav>menu junk</nav>
			<article>The   lighthouse keeper's story,   spanning decades.</article>
		</body></html>`))
	}))
	defer srv.Close()

	content := testService(t, "http://127.0.0.1:1").ExpandContent(context.Background(), srv.URL)

	if !strings.Contains(content, "lighthouse keeper's story, spanning decades.") {
		t.Errorf("content = %q", content)
	}
	if strings.Contains(content, "menu junk") {
		t.Errorf("navigation text should not be extracted: %q", content)
	}
}

func TestCleanContentTruncatesOnSentence(t *testing.T) {
	content := strings.Repeat("A sentence here. ", 40)
	got := cleanContent(content, 100)

	if len(got) > 110 {
		t.Errorf("length = %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated content should be marked: %q", got)
	}
}
