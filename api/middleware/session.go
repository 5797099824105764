package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/session"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type SessionResolver interface {
	GetServerSession(ctx context.Context, r *http.Request) (*session.Session, error)
}

// Session resolves the caller once per request. Anonymous callers pass
// through with no session on the context.
func Session(resolver SessionResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s, err := resolver.GetServerSession(ctx, r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if s != nil {
				ctx = session.WithSession(ctx, s)
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"user_id":    s.UserID.String(),
						"actor_role": s.Role.String(),
					})
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous callers. Browsers asking for HTML are sent to
// loginPath with the original location in next.
func RequireUser(loginPath string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session.FromContext(r.Context()) == nil {
				denyAnonymous(w, r, loginPath, logg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits only sessions whose role carries the admin capability.
func RequireAdmin(loginPath string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s == nil {
				denyAnonymous(w, r, loginPath, logg)
				return
			}
			if !s.IsAdmin() {
				if wantsHTML(r) {
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func denyAnonymous(w http.ResponseWriter, r *http.Request, loginPath string, logg *logger.Logger) {
	if wantsHTML(r) && loginPath != "" {
		target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
