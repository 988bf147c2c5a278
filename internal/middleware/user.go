package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/helpyourself/companion/backend/pkg/utils"
)

// UserHeader carries the signed-in user's id.
const UserHeader = "X-User-ID"

type userKey struct{}

// UserID reads the X-User-ID header into the request context.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
			r = r.WithContext(WithUser(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a user id with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if User(r.Context()) == "" {
			utils.RespondError(w, http.StatusUnauthorized, "user not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser stores id in ctx.
func WithUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// User returns the user id stored by UserID, or "".
func User(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
