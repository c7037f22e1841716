// Package pagination implements opaque keyset cursors for list endpoints.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor marks the position of the last item of a page. Listings order
// by (created_at, id) so the pair resumes the scan without skipping or
// repeating rows.
type Cursor struct {
	LastID    string
	CreatedAt time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor creates a base64-encoded cursor from the last item ID and
// its creation time
func EncodeCursor(lastID string, createdAt time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + createdAt.UTC().Format(time.RFC3339Nano)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a base64-encoded cursor. An empty cursor decodes
// to nil, meaning the first page.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		CreatedAt: createdAt,
	}, nil
}

// CreateNextCursor creates a cursor for the next page based on the last
// item. Returns empty string when the page was not full, meaning there
// are no more items.
func CreateNextCursor[T any](items []T, limit int, getID func(T) string, getCreatedAt func(T) time.Time) string {
	if len(items) == 0 || len(items) < limit {
		return ""
	}
	lastItem := items[len(items)-1]
	return EncodeCursor(getID(lastItem), getCreatedAt(lastItem))
}
