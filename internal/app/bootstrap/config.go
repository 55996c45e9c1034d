package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL   string
	MaxDBConns    int32
	RunMigrations bool
	RedisURL      string

	KafkaBrokers       []string
	KafkaConsumerGroup string
	KafkaInputTopics   []string
	KafkaTopicPrefix   string

	PublicBaseURL  string
	WebhookSecrets map[string]string
	WebhookSkew    time.Duration
	JWTHMACSecret  string
	JWTIssuer      string
	AdminRoles     []string

	CommissionRatePercent   decimal.Decimal
	FreeReferralBonusAmount decimal.Decimal
	LockInWindowDays        int
	FreeReferralWindowDays  int
	CommissionHoldDays      int
	MinimumPayoutAmount     decimal.Decimal
	PayoutFeePercent        decimal.Decimal

	CodeCacheTTL         time.Duration
	IdempotencyTTL       time.Duration
	ConsumerPollInterval time.Duration
	OutboxPollInterval   time.Duration
	OutboxFlushBatchSize int
	MaturationInterval   time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID            string `yaml:"id"`
		HTTPPort      int    `yaml:"http_port"`
		GRPCPort      int    `yaml:"grpc_port"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		MaxDBConns   int      `yaml:"max_db_conns"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Kafka struct {
		ConsumerGroup string   `yaml:"consumer_group"`
		InputTopics   []string `yaml:"input_topics"`
		TopicPrefix   string   `yaml:"topic_prefix"`
	} `yaml:"kafka"`
	Security struct {
		JWTIssuer          string   `yaml:"jwt_issuer"`
		AdminRoles         []string `yaml:"admin_roles"`
		WebhookSkewSeconds int      `yaml:"webhook_skew_seconds"`
	} `yaml:"security"`
	Affiliate struct {
		CommissionRatePercent   string `yaml:"commissionRatePercent"`
		FreeReferralBonusAmount string `yaml:"freeReferralBonusAmount"`
		LockInWindowDays        int    `yaml:"lockInWindowDays"`
		FreeReferralWindowDays  int    `yaml:"freeReferralWindowDays"`
		CommissionHoldDays      int    `yaml:"commissionHoldDays"`
		MinimumPayoutAmount     string `yaml:"minimumPayoutAmount"`
		PayoutFeePercent        string `yaml:"payoutFeePercent"`
	} `yaml:"affiliate"`
	Runtime struct {
		CodeCacheTTLSeconds       int `yaml:"code_cache_ttl_seconds"`
		IdempotencyTTLHours       int `yaml:"idempotency_ttl_hours"`
		ConsumerPollSeconds       int `yaml:"consumer_poll_seconds"`
		OutboxPollSeconds         int `yaml:"outbox_poll_seconds"`
		OutboxFlushBatchSize      int `yaml:"outbox_flush_batch_size"`
		MaturationIntervalSeconds int `yaml:"maturation_interval_seconds"`
	} `yaml:"runtime"`
}

func defaultConfig() Config {
	return Config{
		ServiceID:               "affiliate-ledger",
		HTTPPort:                8080,
		GRPCPort:                9090,
		MaxDBConns:              10,
		RunMigrations:           true,
		KafkaConsumerGroup:      "affiliate-ledger",
		KafkaInputTopics:        []string{"billing.payment.succeeded"},
		PublicBaseURL:           "https://platform.com",
		WebhookSecrets:          map[string]string{},
		WebhookSkew:             5 * time.Minute,
		AdminRoles:              []string{"admin", "finance"},
		CommissionRatePercent:   decimal.NewFromInt(10),
		FreeReferralBonusAmount: decimal.RequireFromString("0.10"),
		LockInWindowDays:        30,
		FreeReferralWindowDays:  14,
		CommissionHoldDays:      0,
		MinimumPayoutAmount:     decimal.RequireFromString("50.00"),
		PayoutFeePercent:        decimal.Zero,
		CodeCacheTTL:            10 * time.Minute,
		IdempotencyTTL:          7 * 24 * time.Hour,
		ConsumerPollInterval:    2 * time.Second,
		OutboxPollInterval:      2 * time.Second,
		OutboxFlushBatchSize:    100,
		MaturationInterval:      time.Minute,
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if raw, err := os.ReadFile(path); err == nil {
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.PublicBaseURL != "" {
		cfg.PublicBaseURL = f.Service.PublicBaseURL
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = int32(f.Dependencies.MaxDBConns)
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if brokers := trimNonEmpty(f.Dependencies.KafkaBrokers); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	if f.Kafka.ConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Kafka.ConsumerGroup
	}
	if topics := trimNonEmpty(f.Kafka.InputTopics); len(topics) > 0 {
		cfg.KafkaInputTopics = topics
	}
	if f.Kafka.TopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Kafka.TopicPrefix
	}
	if f.Security.JWTIssuer != "" {
		cfg.JWTIssuer = f.Security.JWTIssuer
	}
	if roles := trimNonEmpty(f.Security.AdminRoles); len(roles) > 0 {
		cfg.AdminRoles = roles
	}
	if f.Security.WebhookSkewSeconds > 0 {
		cfg.WebhookSkew = time.Duration(f.Security.WebhookSkewSeconds) * time.Second
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"commissionRatePercent", f.Affiliate.CommissionRatePercent, &cfg.CommissionRatePercent},
		{"freeReferralBonusAmount", f.Affiliate.FreeReferralBonusAmount, &cfg.FreeReferralBonusAmount},
		{"minimumPayoutAmount", f.Affiliate.MinimumPayoutAmount, &cfg.MinimumPayoutAmount},
		{"payoutFeePercent", f.Affiliate.PayoutFeePercent, &cfg.PayoutFeePercent},
	} {
		if strings.TrimSpace(field.raw) == "" {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(field.raw))
		if err != nil {
			return fmt.Errorf("parse affiliate.%s: %w", field.name, err)
		}
		*field.dst = v
	}
	if f.Affiliate.LockInWindowDays > 0 {
		cfg.LockInWindowDays = f.Affiliate.LockInWindowDays
	}
	if f.Affiliate.FreeReferralWindowDays > 0 {
		cfg.FreeReferralWindowDays = f.Affiliate.FreeReferralWindowDays
	}
	if f.Affiliate.CommissionHoldDays > 0 {
		cfg.CommissionHoldDays = f.Affiliate.CommissionHoldDays
	}

	if f.Runtime.CodeCacheTTLSeconds > 0 {
		cfg.CodeCacheTTL = time.Duration(f.Runtime.CodeCacheTTLSeconds) * time.Second
	}
	if f.Runtime.IdempotencyTTLHours > 0 {
		cfg.IdempotencyTTL = time.Duration(f.Runtime.IdempotencyTTLHours) * time.Hour
	}
	if f.Runtime.ConsumerPollSeconds > 0 {
		cfg.ConsumerPollInterval = time.Duration(f.Runtime.ConsumerPollSeconds) * time.Second
	}
	if f.Runtime.OutboxPollSeconds > 0 {
		cfg.OutboxPollInterval = time.Duration(f.Runtime.OutboxPollSeconds) * time.Second
	}
	if f.Runtime.OutboxFlushBatchSize > 0 {
		cfg.OutboxFlushBatchSize = f.Runtime.OutboxFlushBatchSize
	}
	if f.Runtime.MaturationIntervalSeconds > 0 {
		cfg.MaturationInterval = time.Duration(f.Runtime.MaturationIntervalSeconds) * time.Second
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaInputTopics = envCSV("KAFKA_INPUT_TOPICS", cfg.KafkaInputTopics)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)
	cfg.PublicBaseURL = envOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.JWTHMACSecret = envOrDefault("JWT_HMAC_SECRET", cfg.JWTHMACSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AdminRoles = envCSV("ADMIN_ROLES", cfg.AdminRoles)

	secrets, err := parseWebhookSecrets(os.Getenv("WEBHOOK_SECRETS"))
	if err != nil {
		return err
	}
	for gateway, secret := range secrets {
		cfg.WebhookSecrets[gateway] = secret
	}

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RunMigrations = envBool("RUN_MIGRATIONS", cfg.RunMigrations)
	cfg.LockInWindowDays = envInt("LOCK_IN_WINDOW_DAYS", cfg.LockInWindowDays)
	cfg.FreeReferralWindowDays = envInt("FREE_REFERRAL_WINDOW_DAYS", cfg.FreeReferralWindowDays)
	cfg.CommissionHoldDays = envInt("COMMISSION_HOLD_DAYS", cfg.CommissionHoldDays)
	cfg.OutboxFlushBatchSize = envInt("OUTBOX_FLUSH_BATCH_SIZE", cfg.OutboxFlushBatchSize)

	cfg.WebhookSkew = time.Duration(envInt("WEBHOOK_SKEW_SECONDS", int(cfg.WebhookSkew.Seconds()))) * time.Second
	cfg.CodeCacheTTL = time.Duration(envInt("CODE_CACHE_TTL_SECONDS", int(cfg.CodeCacheTTL.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.MaturationInterval = time.Duration(envInt("MATURATION_INTERVAL_SECONDS", int(cfg.MaturationInterval.Seconds()))) * time.Second

	if cfg.CommissionRatePercent, err = envDecimal("COMMISSION_RATE_PERCENT", cfg.CommissionRatePercent); err != nil {
		return err
	}
	if cfg.FreeReferralBonusAmount, err = envDecimal("FREE_REFERRAL_BONUS_AMOUNT", cfg.FreeReferralBonusAmount); err != nil {
		return err
	}
	if cfg.MinimumPayoutAmount, err = envDecimal("MINIMUM_PAYOUT_AMOUNT", cfg.MinimumPayoutAmount); err != nil {
		return err
	}
	if cfg.PayoutFeePercent, err = envDecimal("PAYOUT_FEE_PERCENT", cfg.PayoutFeePercent); err != nil {
		return err
	}
	return nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if !c.CommissionRatePercent.IsPositive() || c.CommissionRatePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("commissionRatePercent must be in (0, 100]")
	}
	if c.FreeReferralBonusAmount.IsNegative() {
		return fmt.Errorf("freeReferralBonusAmount must not be negative")
	}
	if !c.MinimumPayoutAmount.IsPositive() {
		return fmt.Errorf("minimumPayoutAmount must be positive")
	}
	if c.PayoutFeePercent.IsNegative() || c.PayoutFeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("payoutFeePercent must be in [0, 100)")
	}
	if c.LockInWindowDays <= 0 || c.FreeReferralWindowDays <= 0 {
		return fmt.Errorf("lockInWindowDays and freeReferralWindowDays must be positive")
	}
	if c.CommissionHoldDays < 0 {
		return fmt.Errorf("commissionHoldDays must not be negative")
	}
	return nil
}

// parseWebhookSecrets reads "gateway=secret,gateway2=secret2".
func parseWebhookSecrets(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range envSplit(raw) {
		gateway, secret, ok := strings.Cut(pair, "=")
		gateway = strings.ToLower(strings.TrimSpace(gateway))
		secret = strings.TrimSpace(secret)
		if !ok || gateway == "" || secret == "" {
			return nil, fmt.Errorf("invalid WEBHOOK_SECRETS entry %q", pair)
		}
		out[gateway] = secret
	}
	return out, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	parts := envSplit(os.Getenv(name))
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

// envDecimal is strict: money settings that fail to parse stop the boot.
func envDecimal(name string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func envSplit(raw string) []string {
	if raw == "" {
		return nil
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, part := range in {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
