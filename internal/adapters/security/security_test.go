package security

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("secret", "auth-service")
	require.NoError(t, err)

	token, err := v.Sign("user-1", "Admin", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := v.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestJWTVerifierRejects(t *testing.T) {
	_, err := NewJWTVerifier(" ", "")
	require.Error(t, err)

	v, err := NewJWTVerifier("secret", "auth-service")
	require.NoError(t, err)

	expired, err := v.Sign("user-1", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = v.ParseAndValidate(expired)
	assert.Error(t, err)

	other, err := NewJWTVerifier("other-secret", "auth-service")
	require.NoError(t, err)
	forged, err := other.Sign("user-1", "admin", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = v.ParseAndValidate(forged)
	assert.Error(t, err)

	wrongIssuer, err := NewJWTVerifier("secret", "someone-else")
	require.NoError(t, err)
	token, err := wrongIssuer.Sign("user-1", "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = v.ParseAndValidate(token)
	assert.Error(t, err)

	_, err = v.ParseAndValidate("not-a-token")
	assert.Error(t, err)
}

func signedHeader(secret string, ts time.Time, body []byte) http.Header {
	raw := strconv.FormatInt(ts.Unix(), 10)
	h := http.Header{}
	h.Set(HeaderWebhookTimestamp, raw)
	h.Set(HeaderWebhookSignature, hex.EncodeToString(Sign([]byte(secret), raw, body)))
	return h
}

func TestHMACSignatureVerifier(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1"}`)
	v := NewHMACSignatureVerifier(map[string]string{"Stripe": "whsec", "": "ignored"}, time.Minute)

	assert.NoError(t, v.Verify("stripe", signedHeader("whsec", now, body), body, now))

	cases := map[string]struct {
		gateway string
		header  http.Header
		body    []byte
	}{
		"unknown gateway": {gateway: "paypal", header: signedHeader("whsec", now, body), body: body},
		"wrong secret":    {gateway: "stripe", header: signedHeader("nope", now, body), body: body},
		"tampered body":   {gateway: "stripe", header: signedHeader("whsec", now, body), body: []byte(`{"id":"evt_2"}`)},
		"stale timestamp": {gateway: "stripe", header: signedHeader("whsec", now.Add(-2*time.Minute), body), body: body},
		"missing headers": {gateway: "stripe", header: http.Header{}, body: body},
	}
	for name, tc := range cases {
		err := v.Verify(tc.gateway, tc.header, tc.body, now)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature, name)
	}
}
