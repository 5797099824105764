package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id        uuid.UUID
	createdAt time.Time
}

func (r row) CursorKey() Cursor { return Cursor{CreatedAt: r.createdAt, ID: r.id} }

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(c))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	parsed, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	_, err = ParseCursor("%%%")
	assert.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrimUsesLastRowOfPage(t *testing.T) {
	base := time.Now().UTC()
	rows := []row{
		{id: uuid.New(), createdAt: base},
		{id: uuid.New(), createdAt: base.Add(-time.Minute)},
		{id: uuid.New(), createdAt: base.Add(-2 * time.Minute)},
	}

	page, next := Trim(rows, 2)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, cursor.ID)

	page, next = Trim(rows[:2], 2)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
