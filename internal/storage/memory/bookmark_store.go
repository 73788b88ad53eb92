package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

// BookmarkStore provides an in-memory bookmark.Store for development/testing.
type BookmarkStore struct {
	mu    sync.RWMutex
	items map[bookmark.Key]bookmark.Bookmark
}

// NewBookmarkStore constructs a BookmarkStore.
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{
		items: make(map[bookmark.Key]bookmark.Bookmark),
	}
}

// Put inserts or replaces a bookmark.
func (s *BookmarkStore) Put(_ context.Context, b bookmark.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.Key()] = b
	return nil
}

// Get returns the bookmark stored under key.
func (s *BookmarkStore) Get(_ context.Context, key bookmark.Key) (bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[key]
	if !ok {
		return bookmark.Bookmark{}, bookmark.ErrNotFound
	}
	return b, nil
}

// List returns the owner's bookmarks ordered by creation time.
func (s *BookmarkStore) List(_ context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	s.mu.RLock()
	out := make([]bookmark.Bookmark, 0)
	for key, b := range s.items {
		if key.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].BookmarkID < out[j].BookmarkID
	})
	return out, nil
}

// UpdateStatus changes the status of an existing bookmark.
func (s *BookmarkStore) UpdateStatus(_ context.Context, key bookmark.Key, status bookmark.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[key]
	if !ok {
		return bookmark.ErrNotFound
	}
	b.Status = status
	s.items[key] = b
	return nil
}

// Delete removes a bookmark. Missing keys are ignored.
func (s *BookmarkStore) Delete(_ context.Context, key bookmark.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
