package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/pkg/middleware"
)

// HS256Verifier accepts tokens minted by a trusted gateway (or by IssueToken)
// with a shared secret.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) (*HS256Verifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	return &HS256Verifier{secret: []byte(secret)}, nil
}

func (v *HS256Verifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return &claimsToken{claims: claims}, nil
}

// IssueToken signs an HS256 token for actor, valid for ttl.
func IssueToken(secret string, actor document.Actor, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", fmt.Errorf("%w: actor id is required", document.ErrInvalidInput)
	}
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   actor.ID,
		"name":  name,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
