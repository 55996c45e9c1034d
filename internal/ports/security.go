package ports

import (
	"net/http"
	"time"
)

// SignatureVerifier authenticates an inbound gateway webhook before its body
// is trusted.
type SignatureVerifier interface {
	Verify(gateway string, header http.Header, body []byte, now time.Time) error
}

type ActorClaims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	ParseAndValidate(raw string) (ActorClaims, error)
}
