// internal/httpapi/router.go
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarium/internal/errs"
)

// Registrar is implemented by every bounded-context handler.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the API router with the shared middleware stack and
// mounts every registrar under /api/v1.
func NewRouter(logger *zap.Logger, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(Identify)
		for _, reg := range registrars {
			reg.Register(api)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Error: "route not found", Code: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed", Code: "method_not_allowed"})
	})
	return r
}

// IDParam parses the named URL parameter as a UUID.
func IDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", errs.ErrInvalidInput, name)
	}
	return id, nil
}

// QueryInt reads an integer query parameter, returning def when it is absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalidInput, name)
	}
	return n, nil
}

// Caller returns the identity of an authenticated request. Routes using it
// sit behind RequireUser.
func Caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}
