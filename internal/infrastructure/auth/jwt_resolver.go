package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sales-engine/internal/domain"
)

const DefaultGuestPrefix = "guest-"

// JWTIdentityResolver maps an HS256 bearer token to the user id carried in
// its subject claim. Subjects starting with the guest prefix are guests.
type JWTIdentityResolver struct {
	secret      []byte
	guestPrefix string
}

func NewJWTIdentityResolver(secret, guestPrefix string) *JWTIdentityResolver {
	if guestPrefix == "" {
		guestPrefix = DefaultGuestPrefix
	}
	return &JWTIdentityResolver{secret: []byte(secret), guestPrefix: guestPrefix}
}

func (r *JWTIdentityResolver) ResolveIdentity(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.NewUnauthorizedError("missing token")
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil {
		return "", &domain.SaleError{Kind: domain.KindUnauthorized, Message: "invalid token", Cause: err}
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", domain.NewUnauthorizedError("invalid token")
	}
	return claims.Subject, nil
}

func (r *JWTIdentityResolver) IsGuest(userID string) bool {
	return userID == "" || strings.HasPrefix(userID, r.guestPrefix)
}

// IssueToken signs a token for userID valid for ttl.
func (r *JWTIdentityResolver) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// IssueGuestToken signs a token for a fresh guest identity and returns that
// identity with the token.
func (r *JWTIdentityResolver) IssueGuestToken(ttl time.Duration) (string, string, error) {
	guestID := r.guestPrefix + uuid.NewString()
	token, err := r.IssueToken(guestID, ttl)
	if err != nil {
		return "", "", err
	}
	return guestID, token, nil
}
