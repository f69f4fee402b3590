// internal/audit/handler.go
package audit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarium/internal/errs"
	"librarium/internal/httpapi"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	r.With(httpapi.RequireStaff).Get("/admin/audit", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Entity: q.Get("entity"),
		Action: Action(q.Get("action")),
	}

	var err error
	if filter.UserID, err = optionalUUID(q.Get("user_id")); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	if filter.EntityID, err = optionalUUID(q.Get("entity_id")); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	if raw := q.Get("after"); raw != "" {
		if filter.AfterID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			httpapi.Error(w, r, fmt.Errorf("%w: after must be an integer", errs.ErrInvalidInput))
			return
		}
	}
	if filter.Limit, err = httpapi.QueryInt(r, "limit", DefaultLimit); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, entries)
}

func optionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errs.ErrInvalidInput, raw)
	}
	return id, nil
}
