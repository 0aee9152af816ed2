package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

var (
	// ErrInvalidToken indicates a session token failed verification
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired indicates a session token is past its expiry
	ErrTokenExpired = errors.New("session token expired")
)

// Claims is the session token payload. The subject is the user id.
type Claims struct {
	Roles          []string       `json:"roles,omitempty"`
	OrganizationID string         `json:"org,omitempty"`
	Attributes     map[string]any `json:"attrs,omitempty"`
	jwt.RegisteredClaims
}

// TokenOption configures a TokenResolver
type TokenOption func(*TokenResolver)

// WithCookie also reads the token from the named cookie
func WithCookie(name string) TokenOption {
	return func(t *TokenResolver) {
		t.cookie = name
	}
}

// WithIssuer requires the iss claim to match
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenResolver) {
		t.issuer = issuer
	}
}

// TokenResolver verifies HS256 session tokens issued by the login service
type TokenResolver struct {
	secret []byte
	cookie string
	issuer string
}

// NewTokenResolver creates a resolver verifying tokens with secret
func NewTokenResolver(secret []byte, opts ...TokenOption) *TokenResolver {
	t := &TokenResolver{secret: secret}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resolve implements Resolver. The Authorization header takes precedence over
// the cookie.
func (t *TokenResolver) Resolve(r *http.Request) (*rbac.UserContext, error) {
	raw := t.extract(r)
	if raw == "" {
		return nil, nil
	}
	return t.Parse(raw)
}

func (t *TokenResolver) extract(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if t.cookie != "" {
		if c, err := r.Cookie(t.cookie); err == nil {
			return c.Value
		}
	}
	return ""
}

// Parse verifies a raw token and builds the user it describes
func (t *TokenResolver) Parse(raw string) (*rbac.UserContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// numeric attributes keep their exact digits
		jwt.WithJSONNumber(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	user, err := rbac.NewUserContext(claims.Subject, claims.Roles, claims.OrganizationID, claims.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user, nil
}
