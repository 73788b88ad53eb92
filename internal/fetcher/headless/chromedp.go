// Package headless fetches pages through a headless Chrome so that
// client-rendered metadata is visible to the extractor.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const defaultNavigationTimeout = 15 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
}

// Fetcher implements bookmark.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first fetch.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
// Failures are logged and reported as ok == false.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (bookmark.Page, bool) {
	start := time.Now()
	page, err := f.fetch(ctx, rawURL)
	elapsed := time.Since(start)
	site := metrics.SanitizeSite(rawURL)
	if err != nil {
		metrics.ObserveFetch("headless", site, false, 0, elapsed)
		f.logger.Warn("headless fetch failed",
			zap.String("url", rawURL),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return bookmark.Page{}, false
	}
	metrics.ObserveFetch("headless", site, true, len(page.HTML), elapsed)
	return page, true
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (bookmark.Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return bookmark.Page{}, errors.New("empty url")
	}
	if err := f.acquire(ctx); err != nil {
		return bookmark.Page{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.runHeadless(taskCtx, rawURL)
	if err != nil {
		return bookmark.Page{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return bookmark.Page{}, fmt.Errorf("unexpected status %d", status)
	}
	return bookmark.Page{
		URL:        responseURL,
		StatusCode: status,
		HTML:       strings.ToValidUTF8(html, "\uFFFD"),
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, rawURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent)
			if f.cfg.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(f.cfg.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
