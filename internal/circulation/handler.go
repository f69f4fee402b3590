// internal/circulation/handler.go
package circulation

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"librarium/internal/httpapi"
)

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Register mounts the circulation routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Post("/books/{id}/borrow", h.handleBorrow)
		r.Post("/books/{id}/reserve", h.handleReserve)
		r.Post("/borrows/{id}/return", h.handleReturn)
		r.Post("/borrows/{id}/pay", h.handlePayFine)
		r.Post("/reservations/{id}/cancel", h.handleCancelReservation)
		r.Get("/me/borrows", h.handleMyBorrows)
		r.Get("/me/history", h.handleMyHistory)
		r.Get("/me/reservations", h.handleMyReservations)
	})

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireStaff)
		r.Post("/borrows/{id}/lost", h.handleMarkLost)
		r.Get("/admin/borrows/overdue", h.handleOverdue)
		r.Post("/admin/sweeps/overdue", h.handleSweepOverdue)
		r.Post("/admin/sweeps/reservations", h.handleSweepReservations)
	})
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req BorrowRequest
	if err := decodeOptional(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}
	req.UserID = httpapi.Caller(r).UserID
	req.BookID = bookID

	record, err := h.service.Borrow(r.Context(), req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, record)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	record, err := h.service.Return(r.Context(), httpapi.Caller(r).UserID, id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, record)
}

func (h *Handler) handlePayFine(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	record, err := h.service.PayFine(r.Context(), httpapi.Caller(r).UserID, id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleMarkLost(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeOptional(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	record, err := h.service.MarkLost(r.Context(), id, req.Notes)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	res, err := h.service.Reserve(r.Context(), httpapi.Caller(r).UserID, bookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "id")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	res, err := h.service.CancelReservation(r.Context(), httpapi.Caller(r).UserID, id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleMyBorrows(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.OpenBorrows(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleMyHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.History(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Reservations(r.Context(), httpapi.Caller(r).UserID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.OverdueBorrows(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleSweepOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkOverdue(r.Context(), h.now())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (h *Handler) handleSweepReservations(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ExpireReservations(r.Context(), h.now())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]int{"expired": n})
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := httpapi.Decode(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
