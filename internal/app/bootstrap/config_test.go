package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DB_URL", "POSTGRES_URL", "REDIS_URL", "KAFKA_BROKERS", "KAFKA_CONSUMER_GROUP", "KAFKA_INPUT_TOPICS",
		"KAFKA_TOPIC_PREFIX", "PUBLIC_BASE_URL", "JWT_HMAC_SECRET", "JWT_ISSUER", "ADMIN_ROLES", "WEBHOOK_SECRETS",
		"HTTP_PORT", "GRPC_PORT", "DB_MAX_CONNS", "RUN_MIGRATIONS", "LOCK_IN_WINDOW_DAYS", "FREE_REFERRAL_WINDOW_DAYS",
		"COMMISSION_HOLD_DAYS", "OUTBOX_FLUSH_BATCH_SIZE", "WEBHOOK_SKEW_SECONDS", "CODE_CACHE_TTL_SECONDS",
		"IDEMPOTENCY_TTL_HOURS", "CONSUMER_POLL_SECONDS", "OUTBOX_POLL_SECONDS", "MATURATION_INTERVAL_SECONDS",
		"COMMISSION_RATE_PERCENT", "FREE_REFERRAL_BONUS_AMOUNT", "MINIMUM_PAYOUT_AMOUNT", "PAYOUT_FEE_PERCENT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/ledger")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "affiliate-ledger", cfg.ServiceID)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 30, cfg.LockInWindowDays)
	assert.Equal(t, 14, cfg.FreeReferralWindowDays)
	assert.Equal(t, "10", cfg.CommissionRatePercent.String())
	assert.Equal(t, "50.00", cfg.MinimumPayoutAmount.StringFixed(2))
	assert.Equal(t, []string{"admin", "finance"}, cfg.AdminRoles)
	assert.True(t, cfg.RunMigrations)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.WebhookSecrets)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
service:
  http_port: 8181
  public_base_url: https://viralforge.test
dependencies:
  postgres_url: postgres://file/ledger
  kafka_brokers: [" kafka:9092 ", ""]
affiliate:
  commissionRatePercent: "12.5"
  commissionHoldDays: 3
  payoutFeePercent: "1.5"
runtime:
  code_cache_ttl_seconds: 30
`)
	t.Setenv("POSTGRES_URL", "postgres://env/ledger")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("WEBHOOK_SECRETS", "Stripe=whsec_1, paypal=pp_2")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("MINIMUM_PAYOUT_AMOUNT", "25")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/ledger", cfg.DatabaseURL)
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, "https://viralforge.test", cfg.PublicBaseURL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "12.5", cfg.CommissionRatePercent.String())
	assert.Equal(t, 3, cfg.CommissionHoldDays)
	assert.Equal(t, "1.5", cfg.PayoutFeePercent.String())
	assert.Equal(t, "25", cfg.MinimumPayoutAmount.String())
	assert.Equal(t, 30*time.Second, cfg.CodeCacheTTL)
	assert.Equal(t, map[string]string{"stripe": "whsec_1", "paypal": "pp_2"}, cfg.WebhookSecrets)
	assert.False(t, cfg.RunMigrations)
}

func TestLoadConfigShippedDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/ledger")
	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.payment.succeeded"}, cfg.KafkaInputTopics)
	assert.Equal(t, 5*time.Minute, cfg.WebhookSkew)
	assert.Equal(t, time.Minute, cfg.MaturationInterval)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]struct {
		file string
		env  map[string]string
	}{
		"missing database": {},
		"malformed yaml":   {file: "service: [", env: map[string]string{"DB_URL": "postgres://x"}},
		"bad file decimal": {file: "affiliate:\n  payoutFeePercent: abc\n", env: map[string]string{"DB_URL": "postgres://x"}},
		"bad env decimal":  {env: map[string]string{"DB_URL": "postgres://x", "COMMISSION_RATE_PERCENT": "ten"}},
		"rate over 100":    {env: map[string]string{"DB_URL": "postgres://x", "COMMISSION_RATE_PERCENT": "101"}},
		"zero minimum":     {env: map[string]string{"DB_URL": "postgres://x", "MINIMUM_PAYOUT_AMOUNT": "0"}},
		"fee of 100":       {env: map[string]string{"DB_URL": "postgres://x", "PAYOUT_FEE_PERCENT": "100"}},
		"negative hold":    {env: map[string]string{"DB_URL": "postgres://x", "COMMISSION_HOLD_DAYS": "-1"}},
		"zero lock window": {env: map[string]string{"DB_URL": "postgres://x", "LOCK_IN_WINDOW_DAYS": "0"}},
		"bad secret entry": {env: map[string]string{"DB_URL": "postgres://x", "WEBHOOK_SECRETS": "stripe"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tc.file != "" {
				path = writeConfig(t, tc.file)
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	assert.Equal(t, 7, envInt("X_INT", 7))
	t.Setenv("X_BOOL", "maybe")
	assert.True(t, envBool("X_BOOL", true))
	t.Setenv("X_BOOL", "no")
	assert.False(t, envBool("X_BOOL", true))
	t.Setenv("X_CSV", " a, ,b ")
	assert.Equal(t, []string{"a", "b"}, envCSV("X_CSV", nil))
}
