package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

const (
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// HMACSignatureVerifier checks hex(HMAC-SHA256(secret, timestamp + "." + body))
// with a per-gateway secret and a replay tolerance on the timestamp.
type HMACSignatureVerifier struct {
	secrets   map[string][]byte
	tolerance time.Duration
}

func NewHMACSignatureVerifier(secrets map[string]string, tolerance time.Duration) *HMACSignatureVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	out := make(map[string][]byte, len(secrets))
	for gateway, secret := range secrets {
		gateway = strings.ToLower(strings.TrimSpace(gateway))
		if gateway == "" || secret == "" {
			continue
		}
		out[gateway] = []byte(secret)
	}
	return &HMACSignatureVerifier{secrets: out, tolerance: tolerance}
}

func (v *HMACSignatureVerifier) Verify(gateway string, header http.Header, body []byte, now time.Time) error {
	secret, ok := v.secrets[strings.ToLower(strings.TrimSpace(gateway))]
	if !ok {
		return fmt.Errorf("%w: unknown gateway %q", domain.ErrInvalidSignature, gateway)
	}
	rawTS := strings.TrimSpace(header.Get(HeaderWebhookTimestamp))
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp", domain.ErrInvalidSignature)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(header.Get(HeaderWebhookSignature)))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: signature encoding", domain.ErrInvalidSignature)
	}
	if !hmac.Equal(got, Sign(secret, rawTS, body)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// Sign computes the raw signature bytes for a webhook body.
func Sign(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

var _ ports.SignatureVerifier = (*HMACSignatureVerifier)(nil)
