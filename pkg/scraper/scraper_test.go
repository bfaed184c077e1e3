package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/**", "/**/private*"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
	assert.Equal(t, 50, s.config.MaxPages)
}

func TestScraperConfigRejectsBadInput(t *testing.T) {
	_, err := NewWithConfig(ScraperConfig{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "https://example.com", IgnorePatterns: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:           "https://example.com",
		IgnorePatterns:    []string{"/ignore/**", "/**/private*"},
		AllowedExtensions: []string{".html", "/", ""},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/services", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/ignore/deep/page.html", false},
		{"https://example.com/team/private-notes.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestScrapeWithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `
			<html>
				<head><title>Test Page</title></head>
				<body>
					<nav>Menu</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html#top">Link</a>
						<a href="https://elsewhere.example/">External</a>
					</main>
					<script>var x = 1;</script>
				</body>
			</html>`)
		case "/page2.html":
			fmt.Fprint(w, `<html><head><title>Second</title></head><body><p>نجار في القاهرة</p><a href="/">home</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:    server.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(url string) { progress = append(progress, url) },
	})
	require.NoError(t, err)

	pages, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	page := pages[0]
	assert.Equal(t, server.URL+"/", page.URL)
	assert.Equal(t, "Test Page", page.Title)
	assert.Contains(t, page.Content, "Test Content")
	assert.Contains(t, page.Content, "This is a test paragraph")
	assert.NotContains(t, page.Content, "var x")

	assert.Equal(t, "Second", pages[1].Title)
	assert.Contains(t, pages[1].Content, "نجار")
	assert.Len(t, progress, 2)
}

func TestScrapeStartPageError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100})
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), server.URL+"/")
	assert.Error(t, err)
}
