// Package search wraps the SearXNG metasearch instance used by the research
// stage. The collaborator contract is deliberate: Search returns an empty
// result set when anything goes wrong. A missing search backend degrades
// research context, it never fails a run.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/storyreel/storyreel/config"
)

// Result is one web search hit. Snippet may be enriched with text extracted
// from the page itself.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Service is the web search collaborator boundary.
type Service interface {
	Search(ctx context.Context, query string, limit int) []Result
}

type SearxNGService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	probeOnce sync.Once
	available bool
}

func NewSearxNGService(cfg *config.Config, logger *slog.Logger) *SearxNGService {
	return &SearxNGService{
		baseURL:    cfg.SearxNGURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *SearxNGService) Name() string { return "searxng" }

func (s *SearxNGService) Probe(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET",
			fmt.Sprintf("%s/search?q=test&format=json", s.baseURL), nil)
		if err != nil {
			return
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Info("SearXNG not available, research will use model knowledge only")
			return
		}
		defer resp.Body.Close()
		s.available = resp.StatusCode == http.StatusOK
	})
	return s.available
}

func (s *SearxNGService) Search(ctx context.Context, query string, limit int) []Result {
	if !s.Probe(ctx) {
		return nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")

	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode()), nil)
	if err != nil {
		return nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("Search request failed", slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("Search returned unexpected status", slog.Int("status", resp.StatusCode))
		return nil
	}

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		s.logger.Warn("Search response not parseable", slog.String("error", err.Error()))
		return nil
	}

	var results []Result
	for _, item := range payload.Results {
		if len(results) >= limit {
			break
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: cleanContent(item.Content, 300),
		})
	}
	return results
}

// ExpandContent fetches a result page and extracts its main text so the
// research prompt gets more than a one-line snippet. Best effort only.
func (s *SearxNGService) ExpandContent(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	var content string
	doc.Find("article, .content, #content, main, .post, .entry-content, .post-content").Each(func(i int, sel *goquery.Selection) {
		content += sel.Text() + "\n"
	})
	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content, 2000)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanContent(content string, maxLen int) string {
	content = whitespaceRe.ReplaceAllString(content, " ")
	content = strings.TrimSpace(content)
	if maxLen > 0 && len(content) > maxLen {
		content = content[:maxLen]
		// Prefer ending on a sentence or at least a word boundary.
		if idx := strings.LastIndex(content, ". "); idx > maxLen/2 {
			content = content[:idx+1]
		} else if idx := strings.LastIndex(content, " "); idx > maxLen/2 {
			content = content[:idx]
		}
		content += "..."
	}
	return content
}
