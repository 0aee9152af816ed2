package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRoles      = "X-User-Roles"
	HeaderOrganizationID = "X-Organization-ID"
	// HeaderAttributePrefix prefixes one header per user attribute, e.g.
	// X-User-Attr-Assigned-Patients: p1,p2
	HeaderAttributePrefix = "X-User-Attr-"
)

// Resolver extracts the user from a request. It returns (nil, nil) when the
// request carries no credentials and an error when it carries invalid ones.
type Resolver interface {
	Resolve(r *http.Request) (*rbac.UserContext, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(r *http.Request) (*rbac.UserContext, error)

// Resolve calls f(r)
func (f ResolverFunc) Resolve(r *http.Request) (*rbac.UserContext, error) {
	return f(r)
}

// Anonymous resolves no user for any request
var Anonymous Resolver = ResolverFunc(func(*http.Request) (*rbac.UserContext, error) {
	return nil, nil
})

// HeaderResolver reads identity headers injected by an authenticating proxy.
// Only deploy it behind a proxy that strips these headers from client requests.
//
// Roles are comma separated. Attribute names are lower-cased with dashes turned
// into underscores; a value containing commas becomes a list.
type HeaderResolver struct{}

// Resolve implements Resolver
func (HeaderResolver) Resolve(r *http.Request) (*rbac.UserContext, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return nil, nil
	}

	var attrs map[string]any
	for key, values := range r.Header {
		name, ok := strings.CutPrefix(key, HeaderAttributePrefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]any)
		}
		name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
		attrs[name] = headerValue(values[0])
	}

	return rbac.NewUserContext(
		userID,
		SplitList(r.Header.Get(HeaderUserRoles)),
		strings.TrimSpace(r.Header.Get(HeaderOrganizationID)),
		attrs,
	)
}

func headerValue(v string) any {
	if strings.Contains(v, ",") {
		return SplitList(v)
	}
	return strings.TrimSpace(v)
}

// SplitList splits a comma separated list, trimming entries and dropping
// empty ones
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ChainResolver tries each resolver in order. The first user found wins.
// Errors from resolvers that came before a successful one are dropped; if no
// resolver yields a user all errors are returned joined.
type ChainResolver []Resolver

// Resolve implements Resolver
func (c ChainResolver) Resolve(r *http.Request) (*rbac.UserContext, error) {
	var errs []error
	for _, resolver := range c {
		user, err := resolver.Resolve(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, errors.Join(errs...)
}
