// internal/catalog/handler.go
package catalog

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

// Register mounts the catalog routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/books", h.handleListBooks)
	r.Get("/books/{id}", h.handleGetBook)

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireStaff)
		r.Post("/books", h.handleAddBook)
		r.Put("/books/{id}", h.handleUpdateBook)
		r.Delete("/books/{id}", h.handleDeleteBook)
		r.Patch("/books/{id}/copies", h.handleUpdateCopies)
		r.Patch("/books/{id}/status", h.handleSetStatus)
	})
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := httpapi.QueryInt(r, "limit", DefaultLimit)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	offset, err := httpapi.QueryInt(r, "offset", 0)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	filter := Filter{
		Query:         q.Get("q"),
		Category:      Category(q.Get("category")),
		Status:        Status(q.Get("status")),
		AvailableOnly: q.Get("available") == "true",
		OrderBy:       q.Get("order"),
		Limit:         limit,
		Offset:        offset,
	}

	books, err := h.service.ListBooks(r.Context(), filter)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req BookEdit
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func (h *Handler) handleUpdateCopies(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		TotalCopies     int `json:"total_copies"`
		CopiesAvailable int `json:"copies_available"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.UpdateCopies(r.Context(), id, req.TotalCopies, req.CopiesAvailable)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		Status Status `json:"status"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, book)
}
