package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// JWTVerifier validates HS256 access tokens minted by the platform auth
// service. Only the subject and role are read; session state stays with the
// issuer.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt hmac secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

type actorJWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Sign mints a token for the given actor. Used by local tooling and tests.
func (v *JWTVerifier) Sign(userID, role string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorJWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	return token.SignedString(v.secret)
}

func (v *JWTVerifier) ParseAndValidate(raw string) (ports.ActorClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &actorJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return ports.ActorClaims{}, err
	}
	claims, ok := parsed.Claims.(*actorJWTClaims)
	if !ok || !parsed.Valid {
		return ports.ActorClaims{}, errors.New("invalid token claims")
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return ports.ActorClaims{}, errors.New("token has no subject")
	}
	return ports.ActorClaims{
		UserID:    userID,
		Role:      strings.ToLower(strings.TrimSpace(claims.Role)),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

var _ ports.TokenVerifier = (*JWTVerifier)(nil)
