// internal/httpapi/middleware.go
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarium/internal/errs"
)

// Headers set by the upstream gateway once it has authenticated the caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleStaff      = "staff"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	loggerKey
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uuid.UUID
	Staff  bool
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller stored by the Identify middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// LoggerFrom returns the request-scoped logger, or a no-op logger.
func LoggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// Identify reads the caller identity headers. Requests without a valid
// user id continue anonymously; RequireUser rejects them where needed.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderUserID)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			Error(w, r, fmt.Errorf("%w: malformed %s header", errs.ErrInvalidInput, HeaderUserID))
			return
		}
		id := Identity{UserID: userID, Staff: r.Header.Get(HeaderUserRole) == RoleStaff}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, Response{Error: "missing caller identity", Code: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects callers without the staff role.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Staff {
			Error(w, r, fmt.Errorf("%w: staff role required", errs.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog attaches a request-scoped logger and logs every request once
// it has been served.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())
			reqLogger := logger.With(zap.String("request_id", requestID))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), loggerKey, reqLogger)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.Int("status_code", ww.Status()),
				zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if id, ok := IdentityFrom(ctx); ok {
				fields = append(fields, zap.String("user_id", id.UserID.String()))
			}
			reqLogger.Info("access_log", fields...)
		})
	}
}
