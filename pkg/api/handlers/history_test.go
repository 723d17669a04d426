package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/pkg/journal"
)

func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.New(journal.Config{
		Enabled: true,
		SQLite:  journal.SQLiteConfig{Path: filepath.Join(t.TempDir(), "journal.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestHistory(t *testing.T) {
	j := newJournal(t)
	j.Record(journal.Entry{Command: "PUT", Filename: "a.txt", Outcome: journal.OutcomeOK})
	j.Record(journal.Entry{Command: "GET", Filename: "a.txt", Outcome: journal.OutcomeOK})
	j.Record(journal.Entry{Command: "GET", Filename: "b.txt", Outcome: journal.OutcomeError, Error: "Unknown file"})
	require.NoError(t, j.Flush(context.Background()))

	h := NewHistoryHandler(j)

	tests := []struct {
		name  string
		query string
		want  []string // command:filename, newest first
	}{
		{"All", "", []string{"GET:b.txt", "GET:a.txt", "PUT:a.txt"}},
		{"Limit", "?limit=1", []string{"GET:b.txt"}},
		{"Filename", "?filename=a.txt", []string{"GET:a.txt", "PUT:a.txt"}},
		{"CommandCaseInsensitive", "?command=put", []string{"PUT:a.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.History(w, httptest.NewRequest(http.MethodGet, "/history"+tt.query, nil))

			require.Equal(t, http.StatusOK, w.Code)
			rows := decode(t, w).Data.([]any)
			got := make([]string, 0, len(rows))
			for _, row := range rows {
				m := row.(map[string]any)
				got = append(got, m["command"].(string)+":"+m["filename"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistory_BadLimit(t *testing.T) {
	h := NewHistoryHandler(newJournal(t))

	for _, q := range []string{"?limit=abc", "?limit=0", "?limit=-3"} {
		w := httptest.NewRecorder()
		h.History(w, httptest.NewRequest(http.MethodGet, "/history"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestHistory_Disabled(t *testing.T) {
	w := httptest.NewRecorder()
	NewHistoryHandler(nil).History(w, httptest.NewRequest(http.MethodGet, "/history", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "journal is disabled", decode(t, w).Error)
}
