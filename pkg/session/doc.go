// Package session resolves the current user of an HTTP request into an
// *rbac.UserContext.
//
// Resolvers read credentials from a request:
//
//	HeaderResolver  - identity headers set by a trusted upstream proxy
//	TokenResolver   - HS256 session tokens from the Authorization header or a cookie
//	ChainResolver   - the first resolver that yields a user wins
//
// Middleware runs a resolver for every request and stores the user in the
// request context:
//
//	resolver := session.ChainResolver{
//		session.NewTokenResolver(secret, session.WithCookie("gk_session")),
//		session.HeaderResolver{},
//	}
//	handler = session.Middleware(resolver, logger)(handler)
//
//	user := session.UserFromContext(r.Context()) // nil when not authenticated
//
// Missing or invalid credentials never fail the request. The user is simply
// absent and every permission check denies.
package session
