// internal/membership/handler.go
package membership

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

// Register mounts the membership routes.
func (h *Handler) Register(r chi.Router) {
	r.With(httpapi.RequireUser).Post("/members", h.handleRegister)
	r.With(httpapi.RequireUser).Get("/me/profile", h.handleMyProfile)

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireStaff)
		r.Get("/members/{id}", h.handleGetMember)
		r.Patch("/members/{id}/tier", h.handleUpdateTier)
		r.Patch("/members/{id}/active", h.handleSetActive)
	})
}

// handleRegister creates the caller's own profile.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Tier  Tier   `json:"tier"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	p, err := h.service.Register(r.Context(), Registration{
		UserID: httpapi.Caller(r).UserID,
		Email:  req.Email,
		Name:   req.Name,
		Tier:   req.Tier,
	})
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfile(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	p, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		Tier Tier `json:"tier"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	p, err := h.service.UpdateTier(r.Context(), id, req.Tier)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	p, err := h.service.SetActive(r.Context(), id, req.Active)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, p)
}
