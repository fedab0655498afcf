package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyUsername  ctxKey = "username"
)

var errUnauthorized = errors.New("unauthorized")

// requestID passes the caller's X-Request-ID through or generates one.
func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID, _ := r.Context().Value(ctxKeyRequestID).(string)
		a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path, "request_id", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.Logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// ensureLoggedIn rejects requests without a valid token and stores the
// caller's username in the request context.
func (a *API) ensureLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			a.respondError(w, http.StatusUnauthorized, errUnauthorized, "Unauthorized")
			return
		}
		username, err := a.Tokens.Verify(token)
		if err != nil {
			a.respondError(w, http.StatusUnauthorized, err, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUsername, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureCorrectUser only lets a user through to routes under their own
// username.
func (a *API) ensureCorrectUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "username") != username(r.Context()) {
			a.respondError(w, http.StatusUnauthorized, errUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the token from the Authorization header, falling back to
// the _token query parameter.
func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("_token")
}

func username(ctx context.Context) string {
	u, _ := ctx.Value(ctxKeyUsername).(string)
	return u
}
