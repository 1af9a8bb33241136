package user

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

var tracer = otel.Tracer("villain/user")

// DefaultTokenTTL is used when Tokens has no TTL.
const DefaultTokenTTL = 24 * time.Hour

// Claims are the JWT claims issued on login.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and validates HS256 login tokens.
type Tokens struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issue signs a token for u.
func (t *Tokens) Issue(ctx context.Context, u *User) (string, error) {
	_, span := tracer.Start(ctx, "user.issue_token")
	defer span.End()

	if len(t.Secret) == 0 {
		return "", verrors.Configuration("no token secret configured")
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		Username: u.Username(),
		Roles:    u.Roles(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.Issuer,
			Subject:   u.ID(),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", verrors.Wrap(err, "sign token")
	}
	span.SetAttributes(attribute.String("user.username", claims.Username), attribute.String("jwt.id", claims.ID))
	return signed, nil
}

// Validate parses a token and returns its claims.
func (t *Tokens) Validate(ctx context.Context, token string) (*Claims, error) {
	_, span := tracer.Start(ctx, "user.validate_token")
	defer span.End()

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		span.RecordError(err)
		return nil, verrors.Wrap(err, "invalid token").WithCode(verrors.CodeUnauthorized)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, verrors.New("invalid token claims").WithCode(verrors.CodeUnauthorized)
	}
	return claims, nil
}
