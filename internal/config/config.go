package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource   string
	DBMaxConns int32
	HTTPPort   string
	GRPCPort   string

	JWTSecret   string
	JWTTTL      time.Duration
	NotesSecret string

	KafkaBrokers    []string
	LoanEventsTopic string
	AuditTopic      string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	BorrowMaxBatch int
	BookCacheTTL   time.Duration
	MigrateOnStart bool
	LogLevel       string

	AdminUsername string
	AdminPassword string
}

// LoadDotEnv loads the first .env found in the working directory or its two
// parents, falling back to .example.env. A missing file is not an error.
func LoadDotEnv() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dirs := []string{wd, filepath.Dir(wd), filepath.Dir(filepath.Dir(wd))}
	for _, name := range []string{".env", ".example.env"} {
		for _, dir := range dirs {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				return "", fmt.Errorf("failed to load %s: %w", path, err)
			}
			return path, nil
		}
	}
	return "", nil
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	e := &envReader{}
	cfg := &Config{
		DBSource:           e.str("DB_SOURCE", ""),
		DBMaxConns:         int32(e.int("DB_MAX_CONNS", 10)),
		HTTPPort:           e.str("HTTP_PORT", "8080"),
		GRPCPort:           e.str("GRPC_PORT", "9090"),
		JWTSecret:          e.str("JWT_SECRET", ""),
		JWTTTL:             e.duration("JWT_TTL", time.Hour),
		NotesSecret:        e.str("NOTES_SECRET", ""),
		KafkaBrokers:       e.list("KAFKA_BROKERS"),
		LoanEventsTopic:    e.str("LOAN_EVENTS_TOPIC", "library.loans"),
		AuditTopic:         e.str("AUDIT_TOPIC", "library.audit"),
		OutboxPollInterval: e.duration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:    e.int("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  e.int("OUTBOX_MAX_ATTEMPTS", 5),
		BorrowMaxBatch:     e.int("BORROW_MAX_BATCH", 20),
		BookCacheTTL:       e.duration("BOOK_CACHE_TTL", 30*time.Second),
		MigrateOnStart:     e.bool("MIGRATE_ON_START", true),
		LogLevel:           e.str("LOG_LEVEL", "info"),
		AdminUsername:      e.str("ADMIN_USERNAME", ""),
		AdminPassword:      e.str("ADMIN_PASSWORD", ""),
	}

	if cfg.DBSource == "" {
		cfg.DBSource = dsnFromParts(e)
	}

	if cfg.DBSource == "" {
		e.fail("DB_SOURCE or POSTGRES_DB is required")
	}
	if cfg.JWTSecret == "" {
		e.fail("JWT_SECRET is required")
	}
	if cfg.NotesSecret == "" {
		e.fail("NOTES_SECRET is required")
	}
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		e.fail("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dsnFromParts(e *envReader) string {
	name := e.str("POSTGRES_DB", "")
	if name == "" {
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(e.str("POSTGRES_USER", "postgres"), e.str("POSTGRES_PASSWORD", "")),
		Host:     net.JoinHostPort(e.str("DB_HOST", "localhost"), e.str("DB_PORT", "5432")),
		Path:     "/" + name,
		RawQuery: "sslmode=" + e.str("DB_SSLMODE", "disable"),
	}
	return u.String()
}

type envReader struct {
	errs []error
}

func (e *envReader) fail(format string, args ...interface{}) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.fail("%s must be a positive integer, got %q", key, v)
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail("%s must be a boolean, got %q", key, v)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail("%s must be a positive duration, got %q", key, v)
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
