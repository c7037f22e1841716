package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	createdAt := time.Date(2025, 6, 15, 12, 30, 45, 123456789, time.UTC)

	t.Run("round trip", func(t *testing.T) {
		encoded := EncodeCursor("item-42", createdAt)
		require.NotEmpty(t, encoded)

		cursor, err := DecodeCursor(encoded)
		require.NoError(t, err)
		assert.Equal(t, "item-42", cursor.LastID)
		assert.True(t, cursor.CreatedAt.Equal(createdAt))
	})

	t.Run("empty last ID encodes empty", func(t *testing.T) {
		assert.Empty(t, EncodeCursor("", createdAt))
	})

	t.Run("empty cursor is first page", func(t *testing.T) {
		cursor, err := DecodeCursor("")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	t.Run("non-UTC time normalized", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*3600)
		encoded := EncodeCursor("item-1", createdAt.In(loc))

		cursor, err := DecodeCursor(encoded)
		require.NoError(t, err)
		assert.True(t, cursor.CreatedAt.Equal(createdAt))
	})
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"missing separator", base64.StdEncoding.EncodeToString([]byte("no-separator-here"))},
		{"bad timestamp", base64.StdEncoding.EncodeToString([]byte("item-1|yesterday"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeCursor(tt.cursor)
			assert.Nil(t, cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

type pagedItem struct {
	id        string
	createdAt time.Time
}

func TestCreateNextCursor(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	items := []pagedItem{
		{"a", base},
		{"b", base.Add(time.Minute)},
		{"c", base.Add(2 * time.Minute)},
	}
	getID := func(i pagedItem) string { return i.id }
	getCreatedAt := func(i pagedItem) time.Time { return i.createdAt }

	t.Run("full page points at last item", func(t *testing.T) {
		next := CreateNextCursor(items, 3, getID, getCreatedAt)
		require.NotEmpty(t, next)

		cursor, err := DecodeCursor(next)
		require.NoError(t, err)
		assert.Equal(t, "c", cursor.LastID)
		assert.True(t, cursor.CreatedAt.Equal(base.Add(2*time.Minute)))
	})

	t.Run("short page means no more items", func(t *testing.T) {
		assert.Empty(t, CreateNextCursor(items, 5, getID, getCreatedAt))
	})

	t.Run("empty page", func(t *testing.T) {
		assert.Empty(t, CreateNextCursor(nil, 3, getID, getCreatedAt))
	})
}
