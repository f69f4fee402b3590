// internal/httpapi/httpapi_test.go
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"librarium/internal/errs"
)

type probe struct{}

func (probe) Register(r chi.Router) {
	r.Get("/open", func(w http.ResponseWriter, r *http.Request) {
		_, ok := IdentityFrom(r.Context())
		JSON(w, http.StatusOK, map[string]bool{"identified": ok})
	})
	r.With(RequireUser).Get("/mine", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"user_id": Caller(r).UserID.String()})
	})
	r.With(RequireStaff).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, nil)
	})
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, errors.New("database password is hunter2"))
	})
}

func do(t *testing.T, h http.Handler, path string, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestRouterIdentity(t *testing.T) {
	h := NewRouter(zaptest.NewLogger(t), probe{})
	userID := uuid.New()

	rec, body := do(t, h, "/api/v1/open", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"identified": false}, body.Data)

	rec, _ = do(t, h, "/api/v1/mine", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = do(t, h, "/api/v1/mine", map[string]string{HeaderUserID: userID.String()})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"user_id": userID.String()}, body.Data)

	rec, body = do(t, h, "/api/v1/mine", map[string]string{HeaderUserID: "librarian"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body.Code)
}

func TestRequireStaff(t *testing.T) {
	h := NewRouter(zaptest.NewLogger(t), probe{})
	userID := uuid.New().String()

	rec, body := do(t, h, "/api/v1/admin", map[string]string{HeaderUserID: userID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body.Code)

	rec, _ = do(t, h, "/api/v1/admin", map[string]string{HeaderUserID: userID, HeaderUserRole: RoleStaff})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	h := NewRouter(zaptest.NewLogger(t), probe{})

	rec, body := do(t, h, "/api/v1/fail", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "internal", body.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := NewRouter(zaptest.NewLogger(t), probe{})
	rec, body := do(t, h, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Code)

	rec, _ = do(t, h, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	conflict := errs.Define(errs.ErrConflict, "already_borrowed", "already borrowed")
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get book: %w", errs.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad days", errs.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("borrow: %w", conflict), http.StatusConflict},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7&offset=x", nil)

	n, err := QueryInt(req, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = QueryInt(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = QueryInt(req, "offset", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
