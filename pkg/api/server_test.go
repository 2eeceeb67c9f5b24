package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagesec/triagebot/pkg/database"
)

type fakeCoordinator struct {
	sessions int
	roster   int
}

func (f *fakeCoordinator) ActiveSessions() int { return f.sessions }
func (f *fakeCoordinator) RosterSize() int     { return f.roster }

func TestStatus(t *testing.T) {
	db, err := sql.Open("pgx", "postgres://127.0.0.1:1/unused")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewServer(database.NewClientFromDB(db), &fakeCoordinator{sessions: 3, roster: 42}, 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["active_sessions"])
	assert.EqualValues(t, 42, body["roster_size"])
	assert.NotEmpty(t, body["version"])
}

func TestHealth_UnreachableDatabase(t *testing.T) {
	// Port 1 is never listening; ping fails fast.
	db, err := sql.Open("pgx", "postgres://127.0.0.1:1/unused")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewServer(database.NewClientFromDB(db), &fakeCoordinator{}, 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}
