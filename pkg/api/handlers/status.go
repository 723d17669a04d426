package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/marmos91/stowd/pkg/server"
)

// Loop is the view of the event loop the API needs. Both calls run on the
// loop goroutine.
type Loop interface {
	Stats(ctx context.Context) (server.Stats, error)
	Files(ctx context.Context) ([]string, error)
}

// StatusHandler serves loop state.
type StatusHandler struct {
	loop Loop
}

// NewStatusHandler creates a status handler for loop.
func NewStatusHandler(loop Loop) *StatusHandler {
	return &StatusHandler{loop: loop}
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	server.Stats
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.loop.Stats(r.Context())
	if err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(StatusResponse{
		Stats:         stats,
		UptimeSeconds: stats.Uptime.Seconds(),
	}))
}

// FilesResponse is the GET /files payload.
type FilesResponse struct {
	Count int      `json:"count"`
	Files []string `json:"files"`
}

// Files handles GET /files.
func (h *StatusHandler) Files(w http.ResponseWriter, r *http.Request) {
	files, err := h.loop.Files(r.Context())
	if err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(FilesResponse{Count: len(files), Files: files}))
}

func loopError(w http.ResponseWriter, err error) {
	if errors.Is(err, server.ErrServerClosed) {
		ServiceUnavailable(w, "server is shutting down")
		return
	}
	InternalServerError(w, err.Error())
}
