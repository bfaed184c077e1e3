package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/xhad/craftsman/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	MaxPages          int
	RateLimit         float64  // requests per second
	IgnorePatterns    []string // doublestar globs matched against the URL path
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	OnProgress        func(url string)
	Logger            *slog.Logger
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
	log      *slog.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.MaxPages == 0 {
		config.MaxPages = 50
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", ".php", "/", ""}
	}
	if config.UserAgent == "" {
		config.UserAgent = "craftsman-loader/1.0"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	for _, pattern := range config.IgnorePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsedURL.Scheme)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		log:      config.Logger.With("component", "scraper"),
	}, nil
}

func New(baseURL string) (*Scraper, error) {
	return NewWithConfig(ScraperConfig{
		BaseURL: baseURL,
	})
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != s.baseHost {
		return false
	}

	// The last path segment decides the extension.
	path := strings.ToLower(parsedURL.Path)
	last := path[strings.LastIndex(path, "/")+1:]
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		switch {
		case allowedExt == "" && !strings.Contains(last, "."):
			validExt = true
		case allowedExt != "" && strings.HasSuffix(path, allowedExt):
			validExt = true
		}
		if validExt {
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if ok, _ := doublestar.Match(pattern, parsedURL.Path); ok {
			return false
		}
	}

	return true
}

func (s *Scraper) cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return s.cleanContent(content)
}

// Scrape crawls from startURL, staying on the base host, and returns every
// page with non-empty content. Errors on linked pages are logged and skipped;
// only a failure on the start page is returned.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Page, error) {
	var pages []models.Page
	if err := s.scrapeRecursive(ctx, startURL, 0, &pages); err != nil {
		return pages, err
	}
	return pages, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, pages *[]models.Page) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] || len(s.visited) >= s.config.MaxPages {
		return nil
	}

	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(doc.Find("title").Text())
	content := s.extractMainContent(doc)

	if content != "" {
		*pages = append(*pages, models.Page{
			URL:     urlStr,
			Title:   title,
			Content: content,
			Metadata: map[string]interface{}{
				"depth":        depth,
				"time":         time.Now().UTC().Format(time.RFC3339),
				"contentType":  resp.Header.Get("Content-Type"),
				"lastModified": resp.Header.Get("Last-Modified"),
			},
		})
	}

	base := resp.Request.URL
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}

		href, exists := selection.Attr("href")
		if !exists {
			return
		}

		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.log.Debug("error parsing URL", "href", href, "error", err)
			return
		}
		link = base.ResolveReference(link)
		link.Fragment = ""

		if err := s.scrapeRecursive(ctx, link.String(), depth+1, pages); err != nil {
			s.log.Warn("error scraping URL", "url", link.String(), "error", err)
		}
	})

	return ctx.Err()
}
