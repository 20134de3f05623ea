// Package invitation issues self-contained invitation tokens signed with HS256.
package invitation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

var (
	// ErrExpiredInvite is wrapped by Resolve for tokens past their expiry
	ErrExpiredInvite = errors.New("invitation has expired")
	// ErrInvalidInvite is wrapped by Resolve for tokens that fail verification
	ErrInvalidInvite = errors.New("invalid invitation")
)

// Claims carried by an invitation token
type Claims struct {
	DiagramID string `json:"did"`
	jwt.RegisteredClaims
}

// JWTIssuer implements ports.InviteIssuer
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.InviteIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates an issuer. An empty secret gets a random per-process
// key, so tokens do not survive a restart.
func NewJWTIssuer(secret, issuer string, ttl time.Duration, logger *zap.Logger) (*JWTIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate invite key: %w", err)
		}
		if logger != nil {
			logger.Warn("INVITE_SECRET not set, using an ephemeral key")
		}
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JWTIssuer{secret: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token granting access to diagram id
func (i *JWTIssuer) Issue(_ context.Context, id valueobjects.DiagramID) (string, error) {
	if id.IsZero() {
		return "", pkgerrors.NewValidation("diagram id is required")
	}
	now := i.now()
	claims := Claims{
		DiagramID: id.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    i.issuer,
			Subject:   "invite",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", pkgerrors.NewInternal("sign invitation", err)
	}
	return signed, nil
}

// Resolve verifies a token and returns the diagram it grants access to
func (i *JWTIssuer) Resolve(_ context.Context, token string) (valueobjects.DiagramID, error) {
	token = strings.TrimSpace(token)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", pkgerrors.NewValidationCause("invitation has expired", ErrExpiredInvite)
		}
		return "", &pkgerrors.AppError{Type: pkgerrors.ErrorTypeNotFound, Message: "invitation not found", Err: ErrInvalidInvite}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.DiagramID == "" {
		return "", &pkgerrors.AppError{Type: pkgerrors.ErrorTypeNotFound, Message: "invitation not found", Err: ErrInvalidInvite}
	}
	return valueobjects.ParseDiagramID(claims.DiagramID)
}
