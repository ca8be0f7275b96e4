package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Username string `json:"preferred_username,omitempty"`
	OID      string `json:"oid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 session tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(secret, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for id and its expiry.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	c := claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if i.audience != "" {
		c.Audience = jwt.ClaimStrings{i.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(raw string) (Identity, error)
}

type jwtVerifier struct {
	keyfunc jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewHMACVerifier verifies tokens produced by an Issuer with the same secret.
func NewHMACVerifier(secret, issuer, audience string) Verifier {
	return &jwtVerifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		opts:    parserOptions([]string{"HS256"}, issuer, audience),
	}
}

// NewJWKSVerifier verifies RS256 tokens from an external identity provider.
// The returned cleanup stops the background key refresh.
func NewJWKSVerifier(jwksURL, issuer, audience string) (Verifier, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("load jwks: %w", err)
	}
	return &jwtVerifier{keyfunc: k.Keyfunc, opts: parserOptions([]string{"RS256"}, issuer, audience)}, cancel, nil
}

func parserOptions(methods []string, issuer, audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithLeeway(30 * time.Second)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return opts
}

func (v *jwtVerifier) Verify(raw string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, v.keyfunc, v.opts...)
	if err != nil || token == nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	// Entra tokens identify the user by oid; sub is pairwise per app.
	userID := c.OID
	if userID == "" {
		userID = c.Subject
	}
	if userID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Username: c.Username}, nil
}

type chain []Verifier

// Chain accepts a token if any of the verifiers does.
func Chain(verifiers ...Verifier) Verifier {
	return chain(verifiers)
}

func (c chain) Verify(raw string) (Identity, error) {
	for _, v := range c {
		if id, err := v.Verify(raw); err == nil {
			return id, nil
		}
	}
	return Identity{}, ErrInvalidToken
}
