// Package config carrega a configuração do TinyNotes: valores padrão, depois o
// arquivo YAML opcional e por fim as variáveis de ambiente (que vencem).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`
	NoteMaxLen int    `yaml:"note_max_len"`

	RateEnabled    bool          `yaml:"rate_enabled"`
	RateRPS        float64       `yaml:"rate_rps"`
	RateBurst      int           `yaml:"rate_burst"`
	RateKeyHeader  string        `yaml:"rate_key_header"`
	TrustXFF       bool          `yaml:"trust_xff"`
	RetryAfter     time.Duration `yaml:"retry_after"`
	AddHeaders     bool          `yaml:"add_ratelimit_headers"`
	RateIdleTTL    time.Duration `yaml:"rate_idle_ttl"`
	RateCleanEvery time.Duration `yaml:"rate_cleanup_every"`

	ConcurrencyMax     int           `yaml:"concurrency_max"`
	ConcurrencyTimeout time.Duration `yaml:"concurrency_timeout"`

	IdempotencyWait       time.Duration `yaml:"idempotency_wait"`
	IdempotencyStaleAfter time.Duration `yaml:"idempotency_stale_after"`
	IdempotencyTTL        time.Duration `yaml:"idempotency_ttl"`
	IdempotencySweepEvery time.Duration `yaml:"idempotency_sweep_every"`

	MetricsWindow     int  `yaml:"metrics_window"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`

	RateStats RateStats `yaml:"rate_stats"`
}

// RateStats liga o envio das decisões do rate limit para o Redis.
type RateStats struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		APIKey:     "dev-key",
		NoteMaxLen: 240,

		RateEnabled:    true,
		RateRPS:        10,
		RateBurst:      20,
		RateKeyHeader:  "X-API-Key",
		RetryAfter:     1 * time.Second,
		RateIdleTTL:    15 * time.Minute,
		RateCleanEvery: 2 * time.Minute,

		ConcurrencyMax: 100,

		IdempotencyWait:       5 * time.Second,
		IdempotencyStaleAfter: 30 * time.Second,
		IdempotencySweepEvery: time.Minute,

		MetricsWindow:     1000,
		PrometheusEnabled: true,

		RateStats: RateStats{
			Prefix: "tinynotes:ratelimit",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
	}
}

// Load monta a configuração. path vazio pula o arquivo; um path informado
// que não existe é erro.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	if v, ok := os.LookupEnv("API_KEY"); ok {
		// API_KEY="" desliga a checagem
		cfg.APIKey = v
	}
	cfg.NoteMaxLen = getenvIntDefault("NOTE_MAX_LEN", cfg.NoteMaxLen)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", cfg.RateEnabled)
	cfg.RateRPS = getenvFloatDefault("RATE_RPS", cfg.RateRPS)
	cfg.RateBurst = getenvIntDefault("RATE_BURST", cfg.RateBurst)
	cfg.RateKeyHeader = getenvDefault("RATE_KEY_HEADER", cfg.RateKeyHeader)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.TrustXFF)
	cfg.RetryAfter = getenvDurationDefault("RETRY_AFTER", cfg.RetryAfter)
	cfg.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.AddHeaders)
	cfg.RateIdleTTL = getenvDurationDefault("RATE_IDLE_TTL", cfg.RateIdleTTL)
	cfg.RateCleanEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", cfg.RateCleanEvery)

	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", cfg.ConcurrencyMax)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.ConcurrencyTimeout)

	cfg.IdempotencyWait = getenvDurationDefault("IDEMPOTENCY_WAIT", cfg.IdempotencyWait)
	cfg.IdempotencyStaleAfter = getenvDurationDefault("IDEMPOTENCY_STALE_AFTER", cfg.IdempotencyStaleAfter)
	cfg.IdempotencyTTL = getenvDurationDefault("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.IdempotencySweepEvery = getenvDurationDefault("IDEMPOTENCY_SWEEP_EVERY", cfg.IdempotencySweepEvery)

	cfg.MetricsWindow = getenvIntDefault("METRICS_WINDOW", cfg.MetricsWindow)
	cfg.PrometheusEnabled = getenvBoolDefault("PROMETHEUS_ENABLED", cfg.PrometheusEnabled)

	st := &cfg.RateStats
	st.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", st.Enabled)
	st.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", st.RedisDB)
	st.Prefix = getenvDefault("RATE_STATS_PREFIX", st.Prefix)
	st.TTL = getenvDurationDefault("RATE_STATS_TTL", st.TTL)
	st.Bucket = getenvDefault("RATE_STATS_BUCKET", st.Bucket)
	st.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", st.TrackKeys)
}

func (c Config) Validate() error {
	var errs []error
	if c.RateRPS <= 0 {
		errs = append(errs, errors.New("RATE_RPS must be > 0"))
	}
	if c.RateBurst <= 0 {
		errs = append(errs, errors.New("RATE_BURST must be > 0"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.MetricsWindow <= 0 {
		errs = append(errs, errors.New("METRICS_WINDOW must be > 0"))
	}
	if c.NoteMaxLen <= 0 {
		errs = append(errs, errors.New("NOTE_MAX_LEN must be > 0"))
	}
	if c.IdempotencyWait < 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_WAIT must be >= 0"))
	}
	if c.RateStats.Enabled && strings.TrimSpace(c.RateStats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

// Redacted devolve uma cópia sem segredos, para log e para o comando config.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	if c.RateStats.RedisPassword != "" {
		c.RateStats.RedisPassword = "***"
	}
	return c
}
