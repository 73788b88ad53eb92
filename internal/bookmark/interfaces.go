package bookmark

import (
	"context"
	"io"
	"time"
)

// Store persists bookmark records keyed by (owner, bookmark ID).
type Store interface {
	Put(ctx context.Context, b Bookmark) error
	Get(ctx context.Context, key Key) (Bookmark, error)
	List(ctx context.Context, ownerID string) ([]Bookmark, error)
	// UpdateStatus changes only the status field. It returns ErrNotFound when
	// the key does not exist and must not create a record.
	UpdateStatus(ctx context.Context, key Key, status Status) error
	Delete(ctx context.Context, key Key) error
}

// Fetcher retrieves page HTML. It never fails: ok is false when nothing
// usable could be fetched.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (page Page, ok bool)
}

// Extractor derives metadata from HTML. It is total.
type Extractor interface {
	Extract(html, baseURL string) Metadata
}

// MetadataCache remembers extraction results per URL.
type MetadataCache interface {
	Get(ctx context.Context, rawURL string) (Metadata, bool, error)
	Set(ctx context.Context, rawURL string, meta Metadata) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes lifecycle events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces bookmark IDs.
type IDGenerator interface {
	NewID() (string, error)
}
