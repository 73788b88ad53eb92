package bookmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const snapshotContentType = "text/html; charset=utf-8"

// ServiceConfig holds the knobs the service needs from configuration.
type ServiceConfig struct {
	// OwnerID is the placeholder principal that scopes every key. It is not
	// an authentication boundary.
	OwnerID           string
	EnrichmentEnabled bool
	SnapshotPrefix    string
	EventTopic        string
}

// Service implements the bookmark operations on top of injected collaborators.
type Service struct {
	store     Store
	fetcher   Fetcher
	extractor Extractor
	ids       IDGenerator
	clock     Clock
	cfg       ServiceConfig

	cache     MetadataCache
	snapshots BlobStore
	publisher Publisher
	logger    *zap.Logger
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithCache enables the metadata cache in front of the fetcher.
func WithCache(cache MetadataCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithSnapshots archives fetched HTML into the given blob store.
func WithSnapshots(store BlobStore) Option {
	return func(s *Service) {
		s.snapshots = store
	}
}

// WithPublisher publishes lifecycle events after each mutation.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets the service logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires a Service. Store, ID generator, and clock are required;
// fetcher and extractor are required when enrichment is enabled.
func NewService(
	store Store,
	fetcher Fetcher,
	extractor Extractor,
	ids IDGenerator,
	clock Clock,
	cfg ServiceConfig,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if ids == nil || clock == nil {
		return nil, errors.New("id generator and clock are required")
	}
	if cfg.EnrichmentEnabled && (fetcher == nil || extractor == nil) {
		return nil, errors.New("fetcher and extractor are required when enrichment is enabled")
	}
	if strings.TrimSpace(cfg.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	s := &Service{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create persists a new bookmark, enriching it from the page when enabled.
// Enrichment failures never fail creation.
func (s *Service) Create(ctx context.Context, in CreateInput) (Bookmark, error) {
	rawURL := strings.TrimSpace(in.URL)
	if rawURL == "" {
		return Bookmark{}, &ValidationError{Field: "url", Message: "url is required"}
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Bookmark{}, fmt.Errorf("generate bookmark id: %w", err)
	}
	now := s.clock.Now()

	meta, page, fetched := s.enrich(ctx, rawURL)

	b := Bookmark{
		OwnerID:     s.cfg.OwnerID,
		BookmarkID:  id,
		URL:         rawURL,
		Title:       firstNonEmpty(strings.TrimSpace(in.Title), meta.Title, rawURL),
		Status:      StatusUnread,
		Image:       meta.Image,
		Description: meta.Description,
		CreatedAt:   now,
		Timestamp:   now.Unix(),
	}
	if fetched {
		b.SnapshotURI = s.snapshot(ctx, b, page)
	}

	if err := s.store.Put(ctx, b); err != nil {
		metrics.ObserveOperation("create", "error")
		return Bookmark{}, fmt.Errorf("put bookmark: %w", err)
	}
	metrics.ObserveOperation("create", "ok")
	s.logger.Info("bookmark created",
		zap.String("bookmark_id", b.BookmarkID),
		zap.String("url", b.URL),
		zap.Bool("enriched", !meta.Empty()),
	)
	s.publish(ctx, Event{
		Type:       EventCreated,
		OwnerID:    b.OwnerID,
		BookmarkID: b.BookmarkID,
		Status:     b.Status,
		URL:        b.URL,
		OccurredAt: now,
	})
	return b, nil
}

// Preview resolves page metadata for a URL without persisting anything.
func (s *Service) Preview(ctx context.Context, rawURL string) (Metadata, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Metadata{}, &ValidationError{Field: "url", Message: "url is required"}
	}
	if s.fetcher == nil || s.extractor == nil {
		return Metadata{}, nil
	}
	meta, _, _ := s.lookup(ctx, rawURL)
	return meta, nil
}

// List returns every bookmark of the configured owner. The result is never nil.
func (s *Service) List(ctx context.Context) ([]Bookmark, error) {
	items, err := s.store.List(ctx, s.cfg.OwnerID)
	if err != nil {
		metrics.ObserveOperation("list", "error")
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	metrics.ObserveOperation("list", "ok")
	if items == nil {
		items = []Bookmark{}
	}
	return items, nil
}

// Get returns one bookmark or ErrNotFound.
func (s *Service) Get(ctx context.Context, bookmarkID string) (Bookmark, error) {
	key, err := s.key(bookmarkID)
	if err != nil {
		return Bookmark{}, err
	}
	b, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bookmark{}, ErrNotFound
		}
		return Bookmark{}, fmt.Errorf("get bookmark: %w", err)
	}
	return b, nil
}

// UpdateStatus changes the status of a bookmark. A missing bookmark is a
// no-op success.
func (s *Service) UpdateStatus(ctx context.Context, bookmarkID string, rawStatus string) (Status, error) {
	key, err := s.key(bookmarkID)
	if err != nil {
		return "", err
	}
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return "", err
	}
	err = s.store.UpdateStatus(ctx, key, status)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.ObserveOperation("update_status", "not_found")
		s.logger.Info("status update on missing bookmark ignored", zap.String("bookmark_id", key.BookmarkID))
		return status, nil
	case err != nil:
		metrics.ObserveOperation("update_status", "error")
		return "", fmt.Errorf("update bookmark status: %w", err)
	}
	metrics.ObserveOperation("update_status", "ok")
	s.publish(ctx, Event{
		Type:       EventStatusUpdated,
		OwnerID:    key.OwnerID,
		BookmarkID: key.BookmarkID,
		Status:     status,
		OccurredAt: s.clock.Now(),
	})
	return status, nil
}

// Delete removes a bookmark. A missing bookmark is a no-op success.
func (s *Service) Delete(ctx context.Context, bookmarkID string) error {
	key, err := s.key(bookmarkID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		metrics.ObserveOperation("delete", "error")
		return fmt.Errorf("delete bookmark: %w", err)
	}
	metrics.ObserveOperation("delete", "ok")
	s.publish(ctx, Event{
		Type:       EventDeleted,
		OwnerID:    key.OwnerID,
		BookmarkID: key.BookmarkID,
		OccurredAt: s.clock.Now(),
	})
	return nil
}

func (s *Service) key(bookmarkID string) (Key, error) {
	bookmarkID = strings.TrimSpace(bookmarkID)
	if bookmarkID == "" {
		return Key{}, &ValidationError{Field: "bookmarkId", Message: "bookmarkId is required"}
	}
	return Key{OwnerID: s.cfg.OwnerID, BookmarkID: bookmarkID}, nil
}

func (s *Service) enrich(ctx context.Context, rawURL string) (Metadata, Page, bool) {
	if !s.cfg.EnrichmentEnabled {
		metrics.ObserveEnrichment("disabled")
		return Metadata{}, Page{}, false
	}
	return s.lookup(ctx, rawURL)
}

// lookup consults the cache, then the fetcher. The returned bool reports
// whether a page was fetched during this call.
func (s *Service) lookup(ctx context.Context, rawURL string) (Metadata, Page, bool) {
	if s.cache != nil {
		meta, ok, err := s.cache.Get(ctx, rawURL)
		switch {
		case err != nil:
			s.logger.Warn("metadata cache read failed", zap.String("url", rawURL), zap.Error(err))
		case ok:
			metrics.ObserveEnrichment("cache_hit")
			return meta, Page{}, false
		}
	}

	page, ok := s.fetcher.Fetch(ctx, rawURL)
	if !ok {
		metrics.ObserveEnrichment("fetch_failed")
		return Metadata{}, Page{}, false
	}
	base := page.URL
	if base == "" {
		base = rawURL
	}
	meta := s.extractor.Extract(page.HTML, base)
	metrics.ObserveEnrichment("fetched")

	if s.cache != nil {
		if err := s.cache.Set(ctx, rawURL, meta); err != nil {
			s.logger.Warn("metadata cache write failed", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return meta, page, true
}

func (s *Service) snapshot(ctx context.Context, b Bookmark, page Page) string {
	if s.snapshots == nil || page.HTML == "" {
		return ""
	}
	objectPath := path.Join(s.cfg.SnapshotPrefix, b.OwnerID, b.BookmarkID+".html")
	uri, err := s.snapshots.PutObject(ctx, objectPath, snapshotContentType, bytes.NewBufferString(page.HTML))
	if err != nil {
		s.logger.Warn("snapshot write failed", zap.String("bookmark_id", b.BookmarkID), zap.Error(err))
		return ""
	}
	return uri
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.EventTopic, ev); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.String("bookmark_id", ev.BookmarkID),
			zap.Error(err),
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
