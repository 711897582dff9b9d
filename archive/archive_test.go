package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/newsrag/models"
)

func TestSQLiteArchive_PersistsSessionsAndMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "newsrag.db")
	ctx := context.Background()

	a, err := OpenSQLite(ctx, path, 16, nil)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.RecordSession(models.Session{ID: "s1", CreatedAt: now, UpdatedAt: now, Metadata: map[string]string{"client": "cli"}})
	a.RecordMessage("s1", models.Message{ID: "m1", Role: models.RoleUser, Content: "How did the market do?", Sources: []models.Citation{}, Timestamp: now})
	a.RecordMessage("s1", models.Message{
		ID: "m2", Role: models.RoleAssistant, Content: "Stocks rose 2%.", Timestamp: now.Add(time.Second),
		Sources: []models.Citation{{ID: "d1", Title: "Market rallies", URL: "http://a/1", Score: 0.91}},
	})
	// duplicate delivery is ignored
	a.RecordMessage("s1", models.Message{ID: "m1", Role: models.RoleUser, Content: "dup", Timestamp: now})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	a, err = OpenSQLite(ctx, path, 16, nil)
	require.NoError(t, err)
	defer a.Close()

	n, err := a.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := a.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "How did the market do?", msgs[0].Content)
	assert.Empty(t, msgs[0].Sources)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Sources, 1)
	assert.Equal(t, "http://a/1", msgs[1].Sources[0].URL)
	assert.True(t, msgs[1].Timestamp.Equal(now.Add(time.Second)))
}

func TestSQLiteArchive_UpdatedAtOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	a, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "a.db"), 16, nil)
	require.NoError(t, err)
	defer a.Close()

	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	half := base.Add(500 * time.Millisecond)
	require.NoError(t, a.writeSession(ctx, models.Session{ID: "s1", CreatedAt: base, UpdatedAt: half}))

	updatedAt := func() time.Time {
		var raw string
		require.NoError(t, a.db.QueryRowContext(ctx, `SELECT updated_at FROM sessions WHERE id=?`, "s1").Scan(&raw))
		ts, err := time.Parse(timeLayout, raw)
		require.NoError(t, err)
		return ts
	}

	// a whole-second timestamp earlier than the stored one must not win
	require.NoError(t, a.writeMessage(ctx, "s1", models.Message{ID: "m1", Role: models.RoleUser, Timestamp: base}))
	assert.True(t, updatedAt().Equal(half))

	later := base.Add(time.Second)
	require.NoError(t, a.writeMessage(ctx, "s1", models.Message{ID: "m2", Role: models.RoleUser, Timestamp: later}))
	assert.True(t, updatedAt().Equal(later))
}

func TestSQLiteArchive_RecordAfterCloseIsIgnored(t *testing.T) {
	a, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "a.db"), 1, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.NotPanics(t, func() {
		a.RecordMessage("s1", models.Message{ID: "late"})
	})
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.RecordSession(models.Session{ID: "x"})
	r.RecordMessage("x", models.Message{})
	assert.NoError(t, r.Close())
}
