// Package bookmark defines the bookmark record, its collaborators, and the
// service that creates, lists, updates, and deletes bookmarks.
package bookmark

import (
	"fmt"
	"strings"
	"time"
)

// Status represents where a bookmark sits in the reading workflow.
type Status string

// Status values accepted by the update operation.
const (
	StatusUnread   Status = "unread"
	StatusLearning Status = "learning"
	StatusDone     Status = "done"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusUnread, StatusLearning, StatusDone}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusLearning, StatusDone:
		return true
	default:
		return false
	}
}

// ParseStatus converts raw input into a Status, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Message: statusMessage()}
	}
	return s, nil
}

func statusMessage() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return fmt.Sprintf("status must be one of %s", strings.Join(names, ", "))
}

// Key identifies a bookmark within the store.
type Key struct {
	OwnerID    string
	BookmarkID string
}

// Bookmark is the persisted record for one saved URL.
type Bookmark struct {
	OwnerID     string    `json:"ownerId"`
	BookmarkID  string    `json:"bookmarkId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Timestamp   int64     `json:"timestamp"`
	SnapshotURI string    `json:"snapshotUri,omitempty"`
}

// Key returns the storage key of the bookmark.
func (b Bookmark) Key() Key {
	return Key{OwnerID: b.OwnerID, BookmarkID: b.BookmarkID}
}

// Metadata is the best-effort page summary recovered from a fetched page.
type Metadata struct {
	Title       string `json:"title"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// Empty reports whether no field was resolved.
func (m Metadata) Empty() bool {
	return m.Title == "" && m.Image == "" && m.Description == ""
}

// Page is the result of a successful fetch.
type Page struct {
	// URL is the final URL after redirects; relative links resolve against it.
	URL        string
	StatusCode int
	HTML       string
}

// CreateInput carries the caller-supplied fields of a new bookmark.
type CreateInput struct {
	URL   string
	Title string
}

// Event is published after each successful mutation.
type Event struct {
	Type       string    `json:"type"`
	OwnerID    string    `json:"ownerId"`
	BookmarkID string    `json:"bookmarkId"`
	Status     Status    `json:"status,omitempty"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event types.
const (
	EventCreated       = "bookmark.created"
	EventStatusUpdated = "bookmark.status_updated"
	EventDeleted       = "bookmark.deleted"
)

// Attributes returns broker message attributes for routing and filtering.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"type":    e.Type,
		"ownerId": e.OwnerID,
	}
}
