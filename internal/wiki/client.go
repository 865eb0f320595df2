// Package wiki looks up plant photos through the MediaWiki page-images API.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

// Config holds lookup settings.
type Config struct {
	Endpoint    string        `koanf:"endpoint" validate:"omitempty,url"`
	ThumbSize   int           `koanf:"thumb_size" validate:"gte=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	RatePerSec  float64       `koanf:"rate_per_sec" validate:"gte=0"`
	UserAgent   string        `koanf:"user_agent"`
	Concurrency int           `koanf:"concurrency" validate:"gte=0"`
	// Limit is the number of search hits Images considers.
	Limit int `koanf:"limit" validate:"gte=0"`
}

// Client queries one MediaWiki installation.
type Client struct {
	http        *http.Client
	endpoint    string
	thumbSize   int
	userAgent   string
	concurrency int
	limit       int
	limiter     *rate.Limiter
	log         *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ThumbSize <= 0 {
		cfg.ThumbSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "leafcare/1.0"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 4
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		endpoint:    cfg.Endpoint,
		thumbSize:   cfg.ThumbSize,
		userAgent:   cfg.UserAgent,
		concurrency: cfg.Concurrency,
		limit:       cfg.Limit,
		limiter:     rate.NewLimiter(limit, cfg.Concurrency),
		log:         log.With("component", "wiki"),
	}
}

type queryResponse struct {
	Query struct {
		Pages []page `json:"pages"`
	} `json:"query"`
}

type page struct {
	Title     string `json:"title"`
	Index     int    `json:"index"`
	Missing   bool   `json:"missing"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// Images returns thumbnail URLs for the best search hits for name, best
// first. No matching page is an empty result, not an error.
func (c *Client) Images(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []string{}, nil
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("generator", "search")
	q.Set("gsrsearch", name)
	q.Set("gsrlimit", strconv.Itoa(c.limit))
	q.Set("gsrnamespace", "0")
	q.Set("prop", "pageimages")
	q.Set("piprop", "thumbnail")
	q.Set("pithumbsize", strconv.Itoa(c.thumbSize))
	q.Set("pilimit", strconv.Itoa(c.limit))

	var resp queryResponse
	if err := c.get(ctx, q, &resp); err != nil {
		return nil, err
	}

	pages := resp.Query.Pages
	slices.SortStableFunc(pages, func(a, b page) int { return a.Index - b.Index })
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Missing || p.Thumbnail == nil || p.Thumbnail.Source == "" {
			continue
		}
		if !slices.Contains(urls, p.Thumbnail.Source) {
			urls = append(urls, p.Thumbnail.Source)
		}
	}
	return urls, nil
}

// Thumbnails resolves one image per name concurrently. Names that fail or
// have no image are left out of the result.
func (c *Client) Thumbnails(ctx context.Context, names []string) map[string]string {
	var (
		mu  sync.Mutex
		out = make(map[string]string, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, name := range names {
		g.Go(func() error {
			urls, err := c.Images(gctx, name)
			if err != nil {
				c.log.Warn("Image lookup failed", "name", name, "error", err)
				return nil
			}
			if len(urls) == 0 {
				return nil
			}
			mu.Lock()
			out[name] = urls[0]
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) get(ctx context.Context, q url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query wiki: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("wiki returned status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode wiki response: %w", err)
	}
	return nil
}
