package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	EventStorePostgres = "postgres"
	EventStoreSQLite   = "sqlite"
	EventStoreMemory   = "memory"
)

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	EventStore       string
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int
	DBMigrateOnStart bool
	SQLitePath       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers     []string
	KafkaClientID    string
	KafkaGroupID     string
	KafkaEventsTopic string
	KafkaWriteMS     int
	KafkaRetryMax    int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	OutboxScanSec      int
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxBackoffBase  int
	OutboxBackoffMaxMS int

	ProjectionPollMS    int
	ProjectionLockTTL   int
	ProjectionBatchSize int
	MenuCacheTTLSec     int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int
	AdminRole       string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	AuditEnabled       bool

	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func defaults(serviceName string, httpPort int) Config {
	return Config{
		ServiceName:         serviceName,
		HTTPPort:            httpPort,
		LogLevel:            "info",
		RequestTimeoutMS:    30000,
		EventStore:          EventStorePostgres,
		DBMaxConns:          10,
		DBMinConns:          1,
		DBConnMaxIdleSec:    300,
		DBConnMaxLifeSec:    1800,
		SQLitePath:          "data/events.db",
		KafkaEventsTopic:    "cafeteria.menu.events",
		KafkaWriteMS:        5000,
		KafkaRetryMax:       3,
		AsynqQueue:          "default",
		AsynqConcurrency:    10,
		OutboxScanSec:       5,
		OutboxBatchSize:     50,
		OutboxMaxAttempts:   20,
		OutboxBackoffBase:   500,
		OutboxBackoffMaxMS:  60000,
		ProjectionPollMS:    1000,
		ProjectionLockTTL:   30,
		ProjectionBatchSize: 200,
		MenuCacheTTLSec:     30,
		InfluxTimeoutMS:     5000,
		JWKSTTLSeconds:      300,
		JWTClockSkewSec:     60,
		AdminRole:           "menu-admin",
		RateLimitRPS:        20,
		RateLimitBurst:      40,
		OtelInsecure:        true,
		OtelSampleRatio:     1.0,
	}
}

// field binds one configuration key to a Config member. apply returns
// false when the value has the wrong shape.
type field struct {
	key   string
	kind  string
	apply func(cfg *Config, v any) bool
}

func strField(key string, ptr func(*Config) *string) field {
	return field{key: key, kind: "a string", apply: func(cfg *Config, v any) bool {
		s, ok := v.(string)
		if ok {
			*ptr(cfg) = strings.TrimSpace(s)
		}
		return ok
	}}
}

func intField(key string, ptr func(*Config) *int) field {
	return field{key: key, kind: "an integer", apply: func(cfg *Config, v any) bool {
		n, ok := asInt(v)
		if ok {
			*ptr(cfg) = n
		}
		return ok
	}}
}

func boolField(key string, ptr func(*Config) *bool) field {
	return field{key: key, kind: "a boolean", apply: func(cfg *Config, v any) bool {
		b, ok := asBoolAny(v)
		if ok {
			*ptr(cfg) = b
		}
		return ok
	}}
}

func floatField(key string, ptr func(*Config) *float64) field {
	return field{key: key, kind: "a number", apply: func(cfg *Config, v any) bool {
		f, ok := asFloat(v)
		if ok {
			*ptr(cfg) = f
		}
		return ok
	}}
}

func csvField(key string, ptr func(*Config) *[]string) field {
	return field{key: key, kind: "a list", apply: func(cfg *Config, v any) bool {
		switch t := v.(type) {
		case string:
			*ptr(cfg) = parseCSV(t)
		case []any:
			*ptr(cfg) = parseAnyCSV(t)
		default:
			return false
		}
		return true
	}}
}

var fields = []field{
	strField("ENV", func(c *Config) *string { return &c.Env }),
	strField("SERVICE_NAME", func(c *Config) *string { return &c.ServiceName }),
	intField("HTTP_PORT", func(c *Config) *int { return &c.HTTPPort }),
	strField("LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }),
	intField("REQUEST_TIMEOUT_MS", func(c *Config) *int { return &c.RequestTimeoutMS }),

	strField("EVENT_STORE", func(c *Config) *string { return &c.EventStore }),
	strField("DATABASE_URL", func(c *Config) *string { return &c.DatabaseURL }),
	intField("DB_MAX_CONNS", func(c *Config) *int { return &c.DBMaxConns }),
	intField("DB_MIN_CONNS", func(c *Config) *int { return &c.DBMinConns }),
	intField("DB_CONN_MAX_IDLE_SECONDS", func(c *Config) *int { return &c.DBConnMaxIdleSec }),
	intField("DB_CONN_MAX_LIFETIME_SECONDS", func(c *Config) *int { return &c.DBConnMaxLifeSec }),
	boolField("DB_MIGRATE_ON_START", func(c *Config) *bool { return &c.DBMigrateOnStart }),
	strField("SQLITE_PATH", func(c *Config) *string { return &c.SQLitePath }),

	strField("REDIS_ADDR", func(c *Config) *string { return &c.RedisAddr }),
	strField("REDIS_PASSWORD", func(c *Config) *string { return &c.RedisPassword }),
	intField("REDIS_DB", func(c *Config) *int { return &c.RedisDB }),

	csvField("KAFKA_BROKERS", func(c *Config) *[]string { return &c.KafkaBrokers }),
	strField("KAFKA_CLIENT_ID", func(c *Config) *string { return &c.KafkaClientID }),
	strField("KAFKA_CONSUMER_GROUP", func(c *Config) *string { return &c.KafkaGroupID }),
	strField("KAFKA_EVENTS_TOPIC", func(c *Config) *string { return &c.KafkaEventsTopic }),
	intField("KAFKA_WRITE_TIMEOUT_MS", func(c *Config) *int { return &c.KafkaWriteMS }),
	intField("KAFKA_RETRY_MAX", func(c *Config) *int { return &c.KafkaRetryMax }),

	strField("ASYNQ_REDIS_ADDR", func(c *Config) *string { return &c.AsynqRedisAddr }),
	strField("ASYNQ_REDIS_PASSWORD", func(c *Config) *string { return &c.AsynqRedisPass }),
	intField("ASYNQ_REDIS_DB", func(c *Config) *int { return &c.AsynqRedisDB }),
	strField("ASYNQ_QUEUE", func(c *Config) *string { return &c.AsynqQueue }),
	intField("ASYNQ_CONCURRENCY", func(c *Config) *int { return &c.AsynqConcurrency }),

	intField("OUTBOX_SCAN_INTERVAL_SECONDS", func(c *Config) *int { return &c.OutboxScanSec }),
	intField("OUTBOX_BATCH_SIZE", func(c *Config) *int { return &c.OutboxBatchSize }),
	intField("OUTBOX_MAX_ATTEMPTS", func(c *Config) *int { return &c.OutboxMaxAttempts }),
	intField("OUTBOX_BACKOFF_BASE_MS", func(c *Config) *int { return &c.OutboxBackoffBase }),
	intField("OUTBOX_BACKOFF_MAX_MS", func(c *Config) *int { return &c.OutboxBackoffMaxMS }),

	intField("PROJECTION_POLL_INTERVAL_MS", func(c *Config) *int { return &c.ProjectionPollMS }),
	intField("PROJECTION_LOCK_TTL_SECONDS", func(c *Config) *int { return &c.ProjectionLockTTL }),
	intField("PROJECTION_BATCH_SIZE", func(c *Config) *int { return &c.ProjectionBatchSize }),
	intField("MENU_CACHE_TTL_SECONDS", func(c *Config) *int { return &c.MenuCacheTTLSec }),

	strField("INFLUX_URL", func(c *Config) *string { return &c.InfluxURL }),
	strField("INFLUX_TOKEN", func(c *Config) *string { return &c.InfluxToken }),
	strField("INFLUX_ORG", func(c *Config) *string { return &c.InfluxOrg }),
	strField("INFLUX_BUCKET", func(c *Config) *string { return &c.InfluxBucket }),
	intField("INFLUX_TIMEOUT_MS", func(c *Config) *int { return &c.InfluxTimeoutMS }),

	strField("OIDC_ISSUER", func(c *Config) *string { return &c.OIDCIssuer }),
	strField("OIDC_AUDIENCE", func(c *Config) *string { return &c.OIDCAudience }),
	strField("OIDC_JWKS_URL", func(c *Config) *string { return &c.OIDCJWKSURL }),
	intField("JWKS_CACHE_TTL_SECONDS", func(c *Config) *int { return &c.JWKSTTLSeconds }),
	intField("JWT_CLOCK_SKEW_SECONDS", func(c *Config) *int { return &c.JWTClockSkewSec }),
	strField("ADMIN_ROLE", func(c *Config) *string { return &c.AdminRole }),

	csvField("CORS_ALLOWED_ORIGINS", func(c *Config) *[]string { return &c.CORSAllowedOrigins }),
	floatField("RATE_LIMIT_RPS", func(c *Config) *float64 { return &c.RateLimitRPS }),
	intField("RATE_LIMIT_BURST", func(c *Config) *int { return &c.RateLimitBurst }),
	boolField("AUDIT_ENABLED", func(c *Config) *bool { return &c.AuditEnabled }),

	strField("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.OtelEndpoint }),
	boolField("OTEL_EXPORTER_OTLP_INSECURE", func(c *Config) *bool { return &c.OtelInsecure }),
	floatField("OTEL_SAMPLE_RATIO", func(c *Config) *float64 { return &c.OtelSampleRatio }),
}

// Load merges defaults, the optional JSON config file and the environment,
// in that order. It never fails; problems are returned for /readyz.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	return load(serviceNameDefault, httpPortDefault, os.LookupEnv)
}

func load(serviceNameDefault string, httpPortDefault int, lookup func(string) (string, bool)) (Config, []Problem) {
	cfg := defaults(serviceNameDefault, httpPortDefault)
	problems := make([]Problem, 0, 4)

	env := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	cfg.Env = env("ENV")
	explicitPath := env("CONFIG_PATH")
	cfg.ConfigPath = explicitPath
	if cfg.ConfigPath == "" && cfg.Env != "" {
		if root, ok := findRepoRoot(); ok {
			cfg.ConfigPath = filepath.Join(root, "configs", cfg.Env+".json")
		}
	}

	raw, fileProblems, ok := loadConfigFile(cfg.ConfigPath, explicitPath != "")
	problems = append(problems, fileProblems...)
	if ok {
		applyConfigMap(&cfg, raw, &problems)
	}
	applyEnv(&cfg, env, &problems)

	if cfg.OIDCIssuer != "" && cfg.OIDCJWKSURL == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}
	if cfg.AsynqRedisAddr == "" {
		cfg.AsynqRedisAddr = cfg.RedisAddr
	}
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = cfg.ServiceName
	}

	validate(&cfg, httpPortDefault, &problems)
	return cfg, problems
}

func validate(cfg *Config, httpPortDefault int, problems *[]Problem) {
	add := func(field, msg string) { *problems = append(*problems, Problem{Field: field, Message: msg}) }

	if cfg.Env == "" {
		add("ENV", "ENV is required")
		cfg.Env = "dev"
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		add("HTTP_PORT", "HTTP_PORT must be 1-65535")
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		add("REQUEST_TIMEOUT_MS", "REQUEST_TIMEOUT_MS must be > 0")
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	cfg.EventStore = strings.ToLower(cfg.EventStore)
	switch cfg.EventStore {
	case EventStorePostgres:
		if cfg.DatabaseURL == "" {
			add("DATABASE_URL", "DATABASE_URL is required when EVENT_STORE=postgres")
		}
	case EventStoreSQLite:
		if cfg.SQLitePath == "" {
			add("SQLITE_PATH", "SQLITE_PATH is required when EVENT_STORE=sqlite")
		}
	case EventStoreMemory:
	default:
		add("EVENT_STORE", "EVENT_STORE must be postgres, sqlite or memory")
		cfg.EventStore = EventStorePostgres
	}

	positive := []struct {
		key string
		ptr *int
		def int
	}{
		{"DB_MAX_CONNS", &cfg.DBMaxConns, 10},
		{"DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec, 300},
		{"DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec, 1800},
		{"KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS, 5000},
		{"KAFKA_RETRY_MAX", &cfg.KafkaRetryMax, 3},
		{"ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency, 10},
		{"OUTBOX_SCAN_INTERVAL_SECONDS", &cfg.OutboxScanSec, 5},
		{"OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize, 50},
		{"OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts, 20},
		{"OUTBOX_BACKOFF_BASE_MS", &cfg.OutboxBackoffBase, 500},
		{"OUTBOX_BACKOFF_MAX_MS", &cfg.OutboxBackoffMaxMS, 60000},
		{"PROJECTION_POLL_INTERVAL_MS", &cfg.ProjectionPollMS, 1000},
		{"PROJECTION_LOCK_TTL_SECONDS", &cfg.ProjectionLockTTL, 30},
		{"PROJECTION_BATCH_SIZE", &cfg.ProjectionBatchSize, 200},
		{"INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS, 5000},
		{"JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds, 300},
		{"RATE_LIMIT_BURST", &cfg.RateLimitBurst, 40},
	}
	for _, p := range positive {
		if *p.ptr <= 0 {
			add(p.key, p.key+" must be > 0")
			*p.ptr = p.def
		}
	}

	if cfg.DBMinConns < 0 {
		add("DB_MIN_CONNS", "DB_MIN_CONNS must be >= 0")
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		add("DB_MIN_CONNS", "DB_MIN_CONNS must be <= DB_MAX_CONNS")
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.JWTClockSkewSec < 0 {
		add("JWT_CLOCK_SKEW_SECONDS", "JWT_CLOCK_SKEW_SECONDS must be >= 0")
		cfg.JWTClockSkewSec = 60
	}
	if cfg.RedisDB < 0 {
		add("REDIS_DB", "REDIS_DB must be >= 0")
		cfg.RedisDB = 0
	}
	if cfg.MenuCacheTTLSec < 0 {
		add("MENU_CACHE_TTL_SECONDS", "MENU_CACHE_TTL_SECONDS must be >= 0")
		cfg.MenuCacheTTLSec = 0
	}
	if cfg.RateLimitRPS < 0 {
		add("RATE_LIMIT_RPS", "RATE_LIMIT_RPS must be >= 0")
		cfg.RateLimitRPS = 20
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		add("OTEL_SAMPLE_RATIO", "OTEL_SAMPLE_RATIO must be 0-1")
		cfg.OtelSampleRatio = 1.0
	}
}

func (c Config) ProjectionPollInterval() time.Duration {
	return time.Duration(c.ProjectionPollMS) * time.Millisecond
}

func (c Config) MenuCacheTTL() time.Duration {
	return time.Duration(c.MenuCacheTTLSec) * time.Second
}

// findRepoRoot walks up from the working directory to the module root.
func findRepoRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 8; i++ {
		if fi, err := os.Stat(filepath.Join(dir, "configs")); err == nil && fi.IsDir() {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit {
			return nil, nil, false
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		for _, f := range fields {
			if f.key != key {
				continue
			}
			if !f.apply(cfg, v) {
				*problems = append(*problems, Problem{Field: f.key, Message: f.key + " must be " + f.kind})
			}
		}
	}
}

func applyEnv(cfg *Config, env func(string) string, problems *[]Problem) {
	for _, f := range fields {
		v := env(f.key)
		if v == "" && f.key == "HTTP_PORT" {
			v = env("PORT")
		}
		if v == "" {
			continue
		}
		if !f.apply(cfg, v) {
			*problems = append(*problems, Problem{Field: f.key, Message: f.key + " must be " + f.kind})
		}
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBoolAny(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return asBool(t)
	default:
		return false, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
