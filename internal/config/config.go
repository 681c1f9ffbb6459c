package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config stores dispatch service settings.
type Config struct {
	Port      int
	LogLevel  string
	Storage   string
	DB        DB
	Redis     Redis
	Kafka     Kafka
	Dispatch  Dispatch
	Auth      Auth
	RateLimit RateLimit
	Location  Location
	Pprof     Pprof
	Pricing   Gateway
	Proof     Gateway
}

// DB stores Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN renders a pgx connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Pass, d.Host, d.Port, d.Name)
}

// Redis stores location cache settings. Empty Addr selects the in-memory cache.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Kafka stores broker settings. No brokers disables both intake and the event stream.
type Kafka struct {
	Brokers     []string
	GroupID     string
	IntakeTopic string
	EventsTopic string
}

// Dispatch stores assignment engine settings.
type Dispatch struct {
	OfferTTL    time.Duration
	BatchSize   int
	MaxRadiusKm float64
	SweepSpec   string
	SweepLimit  int
}

// Auth stores the bearer token verification key.
type Auth struct {
	Secret string
}

// RateLimit stores HTTP rate limiter settings.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Location stores location cache and throttling settings.
type Location struct {
	TTL              time.Duration
	UpdatesPerSecond float64
	Burst            int
}

// Pprof stores the debug server settings. Empty Addr disables it.
type Pprof struct {
	Addr string
	User string
	Pass string
}

// Gateway stores an outbound HTTP collaborator's settings.
type Gateway struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	e := &envReader{}
	cfg := &Config{
		Port:     e.integer("PORT", DefaultPort()),
		LogLevel: e.str("LOG_LEVEL", "info"),
		Storage:  e.str("STORAGE", StorageMemory),
		DB: DB{
			Host: e.str("POSTGRES_HOST", defaultDB.Host),
			Port: e.str("POSTGRES_PORT", defaultDB.Port),
			User: e.str("POSTGRES_USER", defaultDB.User),
			Pass: e.str("POSTGRES_PASSWORD", defaultDB.Pass),
			Name: e.str("POSTGRES_DB", defaultDB.Name),
		},
		Redis: Redis{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
		},
		Kafka: Kafka{
			Brokers:     e.list("KAFKA_BROKERS"),
			GroupID:     e.str("KAFKA_GROUP_ID", defaultKafka.GroupID),
			IntakeTopic: e.str("KAFKA_INTAKE_TOPIC", defaultKafka.IntakeTopic),
			EventsTopic: e.str("KAFKA_EVENTS_TOPIC", defaultKafka.EventsTopic),
		},
		Dispatch: Dispatch{
			OfferTTL:    e.duration("DISPATCH_OFFER_TTL", defaultDispatch.OfferTTL),
			BatchSize:   e.integer("DISPATCH_BATCH_SIZE", defaultDispatch.BatchSize),
			MaxRadiusKm: e.float("DISPATCH_MAX_RADIUS_KM", defaultDispatch.MaxRadiusKm),
			SweepSpec:   e.str("DISPATCH_SWEEP_SPEC", defaultDispatch.SweepSpec),
			SweepLimit:  e.integer("DISPATCH_SWEEP_LIMIT", defaultDispatch.SweepLimit),
		},
		Auth: Auth{Secret: e.str("AUTH_SECRET", defaultAuthSecret)},
		RateLimit: RateLimit{
			Enabled:    e.boolean("RATE_LIMIT_ENABLED", defaultRateLimit.Enabled),
			Rate:       e.float("RATE_LIMIT_RATE", defaultRateLimit.Rate),
			Burst:      e.integer("RATE_LIMIT_BURST", defaultRateLimit.Burst),
			TTL:        e.duration("RATE_LIMIT_TTL", defaultRateLimit.TTL),
			MaxBuckets: e.integer("RATE_LIMIT_MAX_BUCKETS", defaultRateLimit.MaxBuckets),
		},
		Location: Location{
			TTL:              e.duration("LOCATION_TTL", defaultLocation.TTL),
			UpdatesPerSecond: e.float("LOCATION_UPDATES_PER_SECOND", defaultLocation.UpdatesPerSecond),
			Burst:            e.integer("LOCATION_BURST", defaultLocation.Burst),
		},
		Pprof: Pprof{
			Addr: e.str("PPROF_ADDR", ""),
			User: e.str("PPROF_USER", ""),
			Pass: e.str("PPROF_PASS", ""),
		},
		Pricing: e.gateway("PRICING", defaultGateway),
		Proof:   e.gateway("PROOF", defaultGateway),
	}
	if e.err != nil {
		return nil, e.err
	}

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	pflag.StringVar(&cfg.Storage, "storage", cfg.Storage, "order storage backend: memory or postgres")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	pflag.StringVar(&cfg.Pprof.Addr, "pprof-addr", cfg.Pprof.Addr, "pprof listen address, empty disables")
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Storage != StorageMemory && c.Storage != StoragePostgres {
		return fmt.Errorf("invalid storage %q", c.Storage)
	}
	if p, err := strconv.Atoi(c.DB.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid POSTGRES_PORT: %q", c.DB.Port)
	}
	if c.Dispatch.OfferTTL <= 0 {
		return fmt.Errorf("invalid DISPATCH_OFFER_TTL: %s", c.Dispatch.OfferTTL)
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("invalid DISPATCH_BATCH_SIZE: %d", c.Dispatch.BatchSize)
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("AUTH_SECRET must not be empty")
	}
	return nil
}

// envReader collects the first parse error so Load can report it once.
type envReader struct{ err error }

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) gateway(prefix string, def Gateway) Gateway {
	return Gateway{
		URL:         e.str(prefix+"_URL", def.URL),
		Timeout:     e.duration(prefix+"_TIMEOUT", def.Timeout),
		MaxAttempts: e.integer(prefix+"_MAX_ATTEMPTS", def.MaxAttempts),
		BaseDelay:   e.duration(prefix+"_BASE_DELAY", def.BaseDelay),
		MaxDelay:    e.duration(prefix+"_MAX_DELAY", def.MaxDelay),
	}
}
