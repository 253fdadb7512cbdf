package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string
	LogLevel     string

	BatchSize         int
	BatchInterval     time.Duration
	AdmissionTTL      time.Duration
	ReservationTTL    time.Duration
	QueueEntryTTL     time.Duration
	SchedulerLeaseTTL time.Duration
	SchedulerEnabled  bool

	RedeemBaseURL      string
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getString("HTTP_ADDR", ":8080"),
		CRDBDSN:       os.Getenv("CRDB_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     getString("REDIS_ADDR", "localhost:6379"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:      getString("LOG_LEVEL", "info"),
		RedeemBaseURL: os.Getenv("REDEEM_BASE_URL"),
	}

	var err error
	if cfg.BatchSize, err = positiveInt("BATCH_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = positiveInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  int
		unit time.Duration
		dst  *time.Duration
	}{
		{"BATCH_INTERVAL_MS", 3000, time.Millisecond, &cfg.BatchInterval},
		{"ADMISSION_TTL_SEC", 120, time.Second, &cfg.AdmissionTTL},
		{"RESERVATION_TTL_SEC", 120, time.Second, &cfg.ReservationTTL},
		{"QUEUE_ENTRY_TTL_SEC", 3600, time.Second, &cfg.QueueEntryTTL},
		{"SCHEDULER_LEASE_TTL_MS", 10000, time.Millisecond, &cfg.SchedulerLeaseTTL},
	}
	for _, d := range durations {
		n, err := positiveInt(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = time.Duration(n) * d.unit
	}

	if cfg.IdempotencyTTL, err = positiveDuration("IDEMPOTENCY_TTL", time.Hour); err != nil {
		return nil, err
	}

	cfg.SchedulerEnabled = true
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if cfg.SchedulerEnabled, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrapf(err, "config: SCHEDULER_ENABLED")
		}
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s", key)
	}
	if n <= 0 {
		return 0, errors.Newf("config: %s must be positive, got %d", key, n)
	}
	return n, nil
}

func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("config: %s must be positive, got %s", key, d)
	}
	return d, nil
}
