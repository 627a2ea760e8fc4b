package sitecrawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/models"
	"github.com/cdwc233/WeChat-official-account-management/internal/platform/extract"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
	"github.com/cdwc233/WeChat-official-account-management/pkg/util"
)

const defaultLinkSelector = "a[href]"

// Crawler discovers article links from a seed page and extracts readable
// content from each one.
type Crawler struct {
	logger       *zap.Logger
	client       *http.Client
	seedURL      string
	domain       string
	linkSelector string
}

func NewCrawler(cfg *config.CrawlerConfig, logger *zap.Logger) *Crawler {
	selector := cfg.LinkSelector
	if selector == "" {
		selector = defaultLinkSelector
	}
	return &Crawler{
		logger:       logger,
		seedURL:      cfg.SeedURL,
		domain:       cfg.AllowedDomain,
		linkSelector: selector,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Crawler) Origin() models.SourceType {
	return models.SourceCrawled
}

// FetchAll visits the seed page, collects candidate links, and extracts an
// article from each. Per-link failures become per-item results so one broken
// page never sinks the batch.
func (c *Crawler) FetchAll(ctx context.Context, delay time.Duration) ([]service.FetchResult, error) {
	if c.seedURL == "" {
		return nil, fmt.Errorf("crawler seed url is not configured")
	}

	links, err := c.collectLinks()
	if err != nil {
		return nil, fmt.Errorf("failed to collect links from %s: %w", c.seedURL, err)
	}
	c.logger.Info("Collected candidate links",
		zap.String("seed", c.seedURL), zap.Int("count", len(links)))

	results := make([]service.FetchResult, 0, len(links))
	for i, link := range links {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(delay):
			}
		}

		doc, err := c.fetchArticle(ctx, link)
		if err != nil {
			results = append(results, service.FetchResult{
				Err: fmt.Errorf("failed to fetch %s: %w", link, err),
			})
			continue
		}
		results = append(results, service.FetchResult{Doc: doc})
	}
	return results, nil
}

// collectLinks runs a single-depth pass over the seed page and keeps every
// matching href, deduplicated and resolved to an absolute URL.
func (c *Crawler) collectLinks() ([]string, error) {
	opts := []func(*colly.Collector){colly.MaxDepth(1)}
	if c.domain != "" {
		opts = append(opts, colly.AllowedDomains(c.domain))
	}
	collector := colly.NewCollector(opts...)

	seen := make(map[string]struct{})
	var links []string

	collector.OnHTML(c.linkSelector, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || link == c.seedURL {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	var visitErr error
	collector.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := collector.Visit(c.seedURL); err != nil {
		return nil, err
	}
	collector.Wait()

	if len(links) == 0 && visitErr != nil {
		return nil, visitErr
	}
	return links, nil
}

func (c *Crawler) fetchArticle(ctx context.Context, link string) (*service.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability extraction failed: %w", err)
	}
	if article.Content == "" {
		return nil, fmt.Errorf("no readable content found")
	}

	markdown, err := extract.MarkdownFromHTML(article.Content)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion failed: %w", err)
	}

	return &service.Document{
		SourceKey: util.SourceKeyFromURL(link),
		URL:       link,
		Title:     article.Title,
		Content:   markdown,
		CoverURL:  article.Image,
		RawHTML:   string(raw),
	}, nil
}
