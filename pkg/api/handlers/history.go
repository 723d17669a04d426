package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/marmos91/stowd/pkg/journal"
)

// maxHistoryLimit caps a single history page.
const maxHistoryLimit = 1000

// HistoryHandler serves the transfer journal.
type HistoryHandler struct {
	journal *journal.Journal
}

// NewHistoryHandler creates a history handler. A nil journal answers 404.
func NewHistoryHandler(j *journal.Journal) *HistoryHandler {
	return &HistoryHandler{journal: j}
}

// History handles GET /history?limit=&filename=&command=.
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		NotFound(w, "journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Filename: q.Get("filename"),
		Command:  strings.ToUpper(q.Get("command")),
		Limit:    100,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxHistoryLimit)
	}

	entries, err := h.journal.List(r.Context(), filter)
	if err != nil {
		InternalServerError(w, "failed to read journal")
		return
	}
	writeJSON(w, http.StatusOK, okResponse(entries))
}
