package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/api/middleware"
	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/api/response"
	"github.com/mobilille/mobilille/internal/snapshot"
)

// RefreshTrigger queues an immediate refresh of a source.
type RefreshTrigger interface {
	Trigger(name string) error
}

// AdminHandler handles administrative endpoints.
type AdminHandler struct {
	refresh RefreshTrigger
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(refresh RefreshTrigger, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{refresh: refresh, logger: logger}
}

// RefreshSource handles POST /api/admin/sources/{source}/refresh.
// The refresh runs in the source's own loop; the response does not wait
// for it.
func (h *AdminHandler) RefreshSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")

	if err := h.refresh.Trigger(name); err != nil {
		if errors.Is(err, snapshot.ErrUnknownSource) {
			response.NotFound(w, r, "unknown source "+name)
			return
		}
		h.logger.Error().Err(err).Str("source", name).Msg("failed to queue refresh")
		response.InternalError(w, r, "refresh could not be queued")
		return
	}

	h.logger.Info().
		Str("source", name).
		Str("subject", middleware.GetSubject(r.Context())).
		Msg("refresh requested")

	response.Accepted(w, r, "/ops/status", models.RefreshAccepted{
		Source: name,
		Status: "queued",
	})
}
