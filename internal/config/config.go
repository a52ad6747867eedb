package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Logging configuration
	LogLevel string

	// Auth configuration
	JWTSecret   string
	CORSOrigins []string

	// Fleet configuration
	ServersFile        string
	CredentialsDir     string
	KnownHostsFile     string
	SSHConnectTimeout  time.Duration
	SSHExecTimeout     time.Duration
	SSHConnectAttempts int
	StartupGrace       time.Duration
	StopTimeout        time.Duration
	ConsoleBufferLines int
	DefaultMaxMemory   string

	// Audit configuration
	AuditTableName string
	AuditWorkers   int
	AuditConsole   bool
	AWSRegion      string
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values.
// Panics if required configuration values are missing or invalid.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load is New without the panic
func Load() (*Config, error) {
	// Load .env file from the working directory (silently ignore if not found)
	envPath := filepath.Join(".", ".env")
	_ = godotenv.Load(envPath)

	p := &parser{}
	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "3001"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),

		ServersFile:        getEnvOrDefault("SERVERS_FILE", "servers.yaml"),
		CredentialsDir:     getEnvOrDefault("CREDENTIALS_DIR", "credentials"),
		KnownHostsFile:     os.Getenv("KNOWN_HOSTS_FILE"),
		SSHConnectTimeout:  p.duration("SSH_CONNECT_TIMEOUT", 10*time.Second),
		SSHExecTimeout:     p.duration("SSH_EXEC_TIMEOUT", 30*time.Second),
		SSHConnectAttempts: p.positiveInt("SSH_CONNECT_ATTEMPTS", 1),
		StartupGrace:       p.duration("STARTUP_GRACE", 3*time.Second),
		StopTimeout:        p.duration("STOP_TIMEOUT", 30*time.Second),
		ConsoleBufferLines: p.positiveInt("CONSOLE_BUFFER_LINES", 500),
		DefaultMaxMemory:   getEnvOrDefault("DEFAULT_MAX_MEMORY", "4G"),

		AuditTableName: os.Getenv("AUDIT_TABLE_NAME"),
		AuditWorkers:   p.positiveInt("AUDIT_WORKERS", 2),
		AuditConsole:   p.boolean("AUDIT_CONSOLE", false),
		AWSRegion:      getEnvOrDefault("AWS_REGION", "us-east-1"),
	}

	if len(p.invalid) > 0 {
		return nil, fmt.Errorf("invalid configuration values: %s", strings.Join(p.invalid, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() error {
	var missing []string

	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration values: %v", missing)
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters (got %d)", len(c.JWTSecret))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric (got '%s')", c.Port)
	}
	return nil
}

// parser reads typed environment values and collects every invalid one
type parser struct {
	invalid []string
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, fmt.Sprintf("%s must be a positive duration (got '%s')", key, raw))
		return def
	}
	return d
}

func (p *parser) positiveInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		p.invalid = append(p.invalid, fmt.Sprintf("%s must be a positive integer (got '%s')", key, raw))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.invalid = append(p.invalid, fmt.Sprintf("%s must be a boolean (got '%s')", key, raw))
		return def
	}
	return b
}

// splitList splits a comma separated value, dropping empty items
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetPort returns the server port
func (c *Config) GetPort() string {
	return c.Port
}

// GetLogLevel returns the logging level
func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// AuditEnabled reports whether audit records go to DynamoDB
func (c *Config) AuditEnabled() bool {
	return c.AuditTableName != ""
}
