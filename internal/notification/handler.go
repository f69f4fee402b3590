// internal/notification/handler.go
package notification

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"librarium/internal/httpapi"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the notification routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Get("/me/notifications", h.handleList)
		r.Get("/me/notifications/unread", h.handleUnreadCount)
		r.Post("/me/notifications/read", h.handleMarkAllRead)
		r.Post("/me/notifications/{id}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := httpapi.QueryInt(r, "limit", defaultListLimit)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	items, err := h.service.List(r.Context(), httpapi.Caller(r).UserID, r.URL.Query().Get("unread") == "true", limit)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.service.MarkRead(r.Context(), httpapi.Caller(r).UserID, id); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkAllRead(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]int{"marked": n})
}
