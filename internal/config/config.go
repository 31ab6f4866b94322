// Package config loads settings from PLAYBOOK_ environment variables, an
// optional .env file and an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr         string
	ServerURL          string
	Env                string
	LogLevel           string
	GoogleClientID     string
	GoogleClientSecret string
	TokenPath          string
	RootFolderID       string
	TeamDriveID        string
	AllowedEmails      []string
	BatchSize          int
	CacheCapacity      int
	CacheTTL           time.Duration
	MaxFileBytes       int64
	TrimMarker         string
	TrimMaxLines       int
	JobRetention       time.Duration
}

// overlay is the YAML file shape. Zero values leave the env-derived
// settings untouched.
type overlay struct {
	AllowedEmails []string `yaml:"allowed_emails"`
	RootFolderID  string   `yaml:"root_folder_id"`
	TeamDriveID   string   `yaml:"team_drive_id"`
	Search        struct {
		CacheCapacity int    `yaml:"cache_capacity"`
		CacheTTL      string `yaml:"cache_ttl"`
	} `yaml:"search"`
	Aggregation struct {
		BatchSize    int    `yaml:"batch_size"`
		MaxFileBytes int64  `yaml:"max_file_bytes"`
		TrimMarker   string `yaml:"trim_marker"`
		TrimMaxLines *int   `yaml:"trim_max_lines"`
		JobRetention string `yaml:"job_retention"`
	} `yaml:"aggregation"`
}

var (
	loadDotenv  = func() { _ = godotenv.Load() }
	userHomeDir = os.UserHomeDir
)

func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		ServerAddr:         envOr("PLAYBOOK_SERVER_ADDR", ":8080"),
		ServerURL:          envOr("PLAYBOOK_SERVER_URL", "http://localhost:8080"),
		Env:                envOr("PLAYBOOK_ENV", "local"),
		LogLevel:           os.Getenv("PLAYBOOK_LOG_LEVEL"),
		GoogleClientID:     os.Getenv("PLAYBOOK_GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("PLAYBOOK_GOOGLE_CLIENT_SECRET"),
		TokenPath:          envOr("PLAYBOOK_TOKEN_PATH", defaultTokenPath()),
		RootFolderID:       envOr("PLAYBOOK_ROOT_FOLDER_ID", "root"),
		TeamDriveID:        os.Getenv("PLAYBOOK_TEAM_DRIVE_ID"),
		AllowedEmails:      splitList(os.Getenv("PLAYBOOK_ALLOWED_EMAILS")),
		TrimMarker:         envOr("PLAYBOOK_TRIM_MARKER", "reference"),
	}

	var err error
	if cfg.BatchSize, err = envInt("PLAYBOOK_BATCH_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.CacheCapacity, err = envInt("PLAYBOOK_CACHE_CAPACITY", 50); err != nil {
		return nil, err
	}
	if cfg.TrimMaxLines, err = envInt("PLAYBOOK_TRIM_MAX_LINES", 23); err != nil {
		return nil, err
	}
	maxBytes, err := envInt("PLAYBOOK_MAX_FILE_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxFileBytes = int64(maxBytes)
	if cfg.CacheTTL, err = envDuration("PLAYBOOK_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JobRetention, err = envDuration("PLAYBOOK_JOB_RETENTION", 30*time.Minute); err != nil {
		return nil, err
	}

	if path := os.Getenv("PLAYBOOK_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the tuning values.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("max file bytes must be positive, got %d", c.MaxFileBytes)
	}
	if c.TrimMaxLines < 0 {
		return fmt.Errorf("trim max lines must not be negative, got %d", c.TrimMaxLines)
	}
	return nil
}

// EmailAllowed reports whether email may use the API. An empty allow-list
// admits everyone.
func (c *Config) EmailAllowed(email string) bool {
	if len(c.AllowedEmails) == 0 {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AllowedEmails {
		if strings.ToLower(a) == email {
			return true
		}
	}
	return false
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var o overlay
	if err := yaml.Unmarshal(expandEnvVars(data), &o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(o.AllowedEmails) > 0 {
		c.AllowedEmails = o.AllowedEmails
	}
	if o.RootFolderID != "" {
		c.RootFolderID = o.RootFolderID
	}
	if o.TeamDriveID != "" {
		c.TeamDriveID = o.TeamDriveID
	}
	if o.Search.CacheCapacity != 0 {
		c.CacheCapacity = o.Search.CacheCapacity
	}
	if o.Aggregation.BatchSize != 0 {
		c.BatchSize = o.Aggregation.BatchSize
	}
	if o.Aggregation.MaxFileBytes != 0 {
		c.MaxFileBytes = o.Aggregation.MaxFileBytes
	}
	if o.Aggregation.TrimMarker != "" {
		c.TrimMarker = o.Aggregation.TrimMarker
	}
	if o.Aggregation.TrimMaxLines != nil {
		c.TrimMaxLines = *o.Aggregation.TrimMaxLines
	}
	if c.CacheTTL, err = overrideDuration(c.CacheTTL, o.Search.CacheTTL, "search.cache_ttl"); err != nil {
		return err
	}
	if c.JobRetention, err = overrideDuration(c.JobRetention, o.Aggregation.JobRetention, "aggregation.job_retention"); err != nil {
		return err
	}
	return nil
}

func overrideDuration(cur time.Duration, raw, field string) (time.Duration, error) {
	if raw == "" {
		return cur, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return cur, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// defaultTokenPath prefers $XDG_CONFIG_HOME/playbook, then
// ~/.config/playbook, then the working directory.
func defaultTokenPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "playbook", "token.json")
	}
	home, err := userHomeDir()
	if err != nil || home == "" {
		return "token.json"
	}
	return filepath.Join(home, ".config", "playbook", "token.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		name, def, hasDefault := strings.Cut(string(match[2:len(match)-1]), ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
