package session

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// WithUser stores the user in ctx
func WithUser(ctx context.Context, user *rbac.UserContext) context.Context {
	ctx = contextkeys.WithUser(ctx, user)
	if user != nil {
		ctx = contextkeys.WithUserID(ctx, user.UserID)
	}
	return ctx
}

// UserFromContext returns the user stored in ctx, or nil when the request is
// not authenticated
func UserFromContext(ctx context.Context) *rbac.UserContext {
	user, _ := ctx.Value(contextkeys.UserKey).(*rbac.UserContext)
	return user
}

// Middleware resolves the user of every request. Resolution failures are
// logged and the request continues without a user.
func Middleware(resolver Resolver, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Resolve(r)
			if err != nil {
				logger.WithError(err).
					WithField("request_id", contextkeys.GetRequestID(r.Context())).
					WithField("path", r.URL.Path).
					Warn("failed to resolve session user")
				user = nil
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
