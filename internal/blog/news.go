package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultSources are scraped when no sources are configured.
var DefaultSources = []string{
	"https://www.unep.org/explore-topics/water",
	"https://www.worldbank.org/en/topic/water",
	"https://cpcb.nic.in/",
	"https://nmcg.nic.in/",
}

const (
	itemSelector    = "article, .news-item, .post"
	titleSelector   = "h1, h2, h3, .title"
	excerptSelector = "p, .excerpt, .summary"
	maxExcerpt      = 200
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

type NewsItem struct {
	Title   string    `json:"title"`
	Excerpt string    `json:"excerpt"`
	Source  string    `json:"source"`
	Link    string    `json:"link"`
	Date    time.Time `json:"date"`
}

// Scraper collects water-quality news from HTML pages.
type Scraper struct {
	client  *resty.Client
	sources []string
	circuit *gobreaker.CircuitBreaker
	log     *zap.Logger
	now     func() time.Time

	ttl     time.Duration
	mu      sync.Mutex
	cached  []NewsItem
	fetched time.Time
}

// ScraperConfig configures a Scraper. Zero values select the defaults.
type ScraperConfig struct {
	Sources  []string
	Timeout  time.Duration
	Retries  int
	CacheTTL time.Duration
}

func NewScraper(cfg ScraperConfig, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html")

	return &Scraper{
		client:  client,
		sources: append([]string(nil), cfg.Sources...),
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "news-scraper",
			Interval: time.Minute,
			Timeout:  5 * time.Minute,
		}),
		log: log,
		now: time.Now,
		ttl: cfg.CacheTTL,
	}
}

// News scrapes every source. A failing source is logged and skipped.
func (s *Scraper) News(ctx context.Context) []NewsItem {
	if items, ok := s.fromCache(); ok {
		return items
	}

	items := make([]NewsItem, 0)
	for _, src := range s.sources {
		found, err := s.scrape(ctx, src)
		if err != nil {
			s.log.Warn("news source failed", zap.String("source", src), zap.Error(err))
			continue
		}
		items = append(items, found...)
	}

	s.store(items)
	return items
}

func (s *Scraper) fromCache() ([]NewsItem, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || s.now().Sub(s.fetched) > s.ttl {
		return nil, false
	}
	return append([]NewsItem(nil), s.cached...), true
}

func (s *Scraper) store(items []NewsItem) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.cached = append([]NewsItem(nil), items...)
	s.fetched = s.now()
	s.mu.Unlock()
}

func (s *Scraper) scrape(ctx context.Context, src string) ([]NewsItem, error) {
	base, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}

	body, err := s.circuit.Execute(func() (interface{}, error) {
		resp, err := s.client.R().SetContext(ctx).Get(src)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("circuit breaker open: %w", err)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body.([]byte)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return extract(doc, base, s.now().UTC()), nil
}

func extract(doc *goquery.Document, base *url.URL, at time.Time) []NewsItem {
	var items []NewsItem
	doc.Find(itemSelector).Each(func(_ int, el *goquery.Selection) {
		title := strings.TrimSpace(el.Find(titleSelector).First().Text())
		excerpt := strings.TrimSpace(el.Find(excerptSelector).First().Text())
		if title == "" || excerpt == "" {
			return
		}

		link := base.String()
		if href, ok := el.Find("a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				link = base.ResolveReference(ref).String()
			}
		}

		items = append(items, NewsItem{
			Title:   title,
			Excerpt: truncate(excerpt, maxExcerpt) + "...",
			Source:  base.String(),
			Link:    link,
			Date:    at,
		})
	})
	return items
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
