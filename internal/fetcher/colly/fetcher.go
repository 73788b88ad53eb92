// Package collyfetcher implements bookmark.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const (
	// DefaultTimeout bounds a single fetch when Config.Timeout is zero.
	DefaultTimeout = 5 * time.Second
	// DefaultUserAgent mimics a desktop browser to avoid trivial bot blocks.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	// DefaultAccept is sent as the Accept header when Config.Accept is empty.
	DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	// DefaultAcceptLanguage is sent when Config.AcceptLanguage is empty.
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Timeout        time.Duration
	// MaxBodyBytes caps the response body. Zero keeps colly's default.
	MaxBodyBytes int
}

// Fetcher implements bookmark.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Clones share the collector's HTTP backend, so the
// transport and timeout are configured once here.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	// Bodies are decoded in decodeBody, which also honors <meta charset>.
	c.DetectCharset = false
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. It never returns an error: failures are
// logged and reported as ok == false.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (bookmark.Page, bool) {
	var (
		page     bookmark.Page
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, &page, &fetchErr)

	err := f.runCollector(ctx, collector, rawURL, &page, &fetchErr)
	elapsed := time.Since(start)
	site := metrics.SanitizeSite(rawURL)
	if err != nil {
		metrics.ObserveFetch("colly", site, false, 0, elapsed)
		f.logger.Warn("fetch failed",
			zap.String("url", rawURL),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return bookmark.Page{}, false
	}
	metrics.ObserveFetch("colly", site, true, len(page.HTML), elapsed)
	return page, true
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, page *bookmark.Page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.cfg.UserAgent)
		r.Headers.Set("Accept", f.cfg.Accept)
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			*fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		*page = bookmark.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       decodeBody(r.Body, r.Headers.Get("Content-Type")),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	page *bookmark.Page,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if page.StatusCode == 0 {
			return errNoResponse
		}
		return nil
	}
}

var errNoResponse = errors.New("no response received")

// decodeBody converts body to UTF-8 using, in order, a BOM, the Content-Type
// charset, and a <meta> declaration in the first 1024 bytes. Bytes that still
// fail to decode become U+FFFD.
func decodeBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	decoded := body
	if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
		if out, readErr := io.ReadAll(r); readErr == nil {
			decoded = out
		}
	}
	return strings.ToValidUTF8(string(decoded), "\uFFFD")
}

// newHTTPTransport returns a pooled transport safe for concurrent fetches.
func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
