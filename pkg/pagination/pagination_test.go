package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 10, 15, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(c)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	got, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, c.ID, got.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, raw := range []string{"%%%", "bm8tc2VwYXJhdG9y", "MjAyNi0xMC0xNXxub3QtYS11dWlk"} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
}

func TestTrim(t *testing.T) {
	type row struct{ id uuid.UUID }
	rows := []row{{uuid.New()}, {uuid.New()}, {uuid.New()}}
	key := func(r row) Cursor { return Cursor{ID: r.id} }

	page, next := Trim(rows, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)

	page, next = Trim(rows, 2, key)
	require.Len(t, page, 2)
	c, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, c.ID)
}
