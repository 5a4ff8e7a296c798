// apps/go-server/internal/identity/identity.go
//
// Identity collaborator for the round-tracking core.
// Components never read a global auth context; they are handed a Provider
// and ask it for the current user on each call.
//
// Tokens are HS256 JWTs issued by the external auth service. The user id is
// taken from the "sub" claim, falling back to "id".

package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated actor.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Provider exposes the current authenticated user, if any.
type Provider interface {
	CurrentUser(ctx context.Context) (User, bool)
}

// ctxUserKey is the context key type for storing User.
type ctxUserKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxUserKey{}).(User)
	return u, ok && u.ID != ""
}

// ContextProvider resolves the user from the request context, where the
// auth middleware placed it.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (User, bool) { return FromContext(ctx) }

// Static always returns the same user. A zero User means "signed out".
type Static User

func (s Static) CurrentUser(context.Context) (User, bool) { return User(s), s.ID != "" }

var ErrInvalidToken = errors.New("identity: invalid token")

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses tokenStr and returns the user it identifies.
func (v *Verifier) Verify(tokenStr string) (User, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return User{}, ErrInvalidToken
	}
	id, _ := claims["sub"].(string)
	if id == "" {
		id, _ = claims["id"].(string)
	}
	if id == "" {
		return User{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return User{ID: id, Username: username}, nil
}

// Sign creates a token for u expiring after ttl. The server itself never
// logs users in; this exists for local tooling and tests.
func (v *Verifier) Sign(u User, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      u.ID,
		"username": u.Username,
		"exp":      exp.Unix(),
		"iat":      time.Now().Unix(),
	})
	ss, err := t.SignedString(v.secret)
	return ss, exp, err
}

// BearerOrCookie extracts a bearer token from the Authorization header or
// the named auth cookie.
func BearerOrCookie(r *http.Request, cookieName string) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
