// internal/review/handler.go
package review

import (
	"errors"
	"io"
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

// Register mounts the review and wishlist routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/books/{id}/reviews", h.handleList)

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Post("/books/{id}/reviews", h.handleCreate)
		r.Put("/reviews/{id}", h.handleUpdate)
		r.Delete("/reviews/{id}", h.handleDelete)
		r.Post("/reviews/{id}/helpful", h.handleHelpful)

		r.Post("/books/{id}/wishlist", h.handleWishlistAdd)
		r.Delete("/books/{id}/wishlist", h.handleWishlistRemove)
		r.Get("/me/wishlist", h.handleWishlist)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	list, err := h.service.BookReviews(r.Context(), bookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var in ReviewInput
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	rev, err := h.service.CreateReview(r.Context(), httpapi.Caller(r).UserID, bookID, in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, rev)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var in ReviewInput
	if err := httpapi.Decode(r, &in); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	rev, err := h.service.UpdateReview(r.Context(), httpapi.Caller(r).UserID, id, in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rev)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.service.DeleteReview(r.Context(), httpapi.Caller(r).UserID, id); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func (h *Handler) handleHelpful(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	rev, err := h.service.MarkHelpful(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rev)
}

func (h *Handler) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var in WishlistInput
	if r.ContentLength != 0 {
		if err := httpapi.Decode(r, &in); err != nil && !errors.Is(err, io.EOF) {
			httpapi.Error(w, r, err)
			return
		}
	}

	item, err := h.service.AddToWishlist(r.Context(), httpapi.Caller(r).UserID, bookID, in)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.service.RemoveFromWishlist(r.Context(), httpapi.Caller(r).UserID, bookID); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"book_id": bookID.String()})
}

func (h *Handler) handleWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Wishlist(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, items)
}
