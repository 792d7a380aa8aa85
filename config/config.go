package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RequestIPHeader string   `yaml:"request_ip_header"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres, sqlite or mysql
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// RecognitionConfig selects the face extractor and the match threshold.
type RecognitionConfig struct {
	Threshold      float64       `yaml:"threshold"`
	Extractor      string        `yaml:"extractor"` // http or dlib
	EmbeddingURL   string        `yaml:"embedding_url"`
	ModelDir       string        `yaml:"model_dir"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// GalleryConfig controls how the known-identity gallery is built.
type GalleryConfig struct {
	PictureDir             string        `yaml:"picture_dir"`
	PicturePrefix          string        `yaml:"picture_prefix"`
	Workers                int           `yaml:"workers"`
	CacheTTLSeconds        int           `yaml:"cache_ttl_seconds"` // 0 rebuilds on every request
	CacheTTL               time.Duration `yaml:"-"`
	RefreshIntervalSeconds int           `yaml:"refresh_interval_seconds"`
	RefreshInterval        time.Duration `yaml:"-"`
}

// AttendanceConfig holds the policy window, in fractional hours of the day.
type AttendanceConfig struct {
	Timezone      string  `yaml:"timezone"`
	CheckInStart  float64 `yaml:"check_in_start"`
	CheckInEnd    float64 `yaml:"check_in_end"`
	CheckOutStart float64 `yaml:"check_out_start"`
}

// Load reads the configuration from the given path.
// A .env file in the working directory, if present, is loaded first so that
// its variables can override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.Recognition.EmbeddingURL = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Recognition.Threshold <= 0 {
		cfg.Recognition.Threshold = 0.5
	}
	if cfg.Recognition.Extractor == "" {
		cfg.Recognition.Extractor = "http"
	}
	if cfg.Recognition.EmbeddingURL == "" {
		cfg.Recognition.EmbeddingURL = "http://localhost:8001"
	}
	if cfg.Recognition.TimeoutSeconds <= 0 {
		cfg.Recognition.TimeoutSeconds = 30
	}
	cfg.Recognition.Timeout = time.Duration(cfg.Recognition.TimeoutSeconds) * time.Second

	if cfg.Gallery.PictureDir == "" {
		cfg.Gallery.PictureDir = "uploads/profile_pictures"
	}
	if cfg.Gallery.PicturePrefix == "" {
		cfg.Gallery.PicturePrefix = "uploads/profile_pictures/"
	}
	if cfg.Gallery.Workers <= 0 {
		cfg.Gallery.Workers = 4
	}
	if cfg.Gallery.CacheTTLSeconds < 0 {
		cfg.Gallery.CacheTTLSeconds = 0
	}
	cfg.Gallery.CacheTTL = time.Duration(cfg.Gallery.CacheTTLSeconds) * time.Second
	if cfg.Gallery.RefreshIntervalSeconds > 0 {
		cfg.Gallery.RefreshInterval = time.Duration(cfg.Gallery.RefreshIntervalSeconds) * time.Second
	}

	if cfg.Attendance.Timezone == "" {
		cfg.Attendance.Timezone = "Local"
	}
	// An all-zero window means the section was omitted.
	if cfg.Attendance.CheckInStart == 0 && cfg.Attendance.CheckInEnd == 0 && cfg.Attendance.CheckOutStart == 0 {
		cfg.Attendance.CheckInStart = 9
		cfg.Attendance.CheckInEnd = 9.5
		cfg.Attendance.CheckOutStart = 17
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Validate checks the values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Recognition.Extractor {
	case "http", "dlib":
	default:
		return fmt.Errorf("unsupported extractor %q", c.Recognition.Extractor)
	}
	if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
		return fmt.Errorf("invalid attendance.timezone %q: %w", c.Attendance.Timezone, err)
	}
	return nil
}

// Location resolves the attendance timezone. Load has already validated it.
func (a AttendanceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
