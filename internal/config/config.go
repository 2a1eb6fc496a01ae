package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retry policies for failed records
const (
	RetryManual = "manual"
	RetryAuto   = "auto"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string       `json:"serverAddress" yaml:"serverAddress"`
	DatabasePath  string       `json:"databasePath" yaml:"databasePath"`
	DatabaseURL   string       `json:"databaseUrl" yaml:"databaseUrl"`
	MediaStorage  MediaStorage `json:"mediaStorage" yaml:"mediaStorage"`
	Security      Security     `json:"security" yaml:"security"`
	Sync          Sync         `json:"sync" yaml:"sync"`
	Network       Network      `json:"network" yaml:"network"`
	Capture       Capture      `json:"capture" yaml:"capture"`
	Imports       Imports      `json:"imports" yaml:"imports"`
	Logging       Logging      `json:"logging" yaml:"logging"`
	Telemetry     Telemetry    `json:"telemetry" yaml:"telemetry"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// MediaStorage configuration for captured photos
type MediaStorage struct {
	BasePath          string   `json:"basePath" yaml:"basePath"`
	MaxFileSizeMB     int64    `json:"maxFileSizeMB" yaml:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions" yaml:"allowedExtensions"`

	MaintenanceIntervalMinutes int `json:"maintenanceIntervalMinutes" yaml:"maintenanceIntervalMinutes"`
	OrphanGraceMinutes         int `json:"orphanGraceMinutes" yaml:"orphanGraceMinutes"`
}

// MaintenanceInterval between media maintenance runs
func (m MediaStorage) MaintenanceInterval() time.Duration {
	return time.Duration(m.MaintenanceIntervalMinutes) * time.Minute
}

// OrphanGrace is how old an unreferenced file must be before it is removed
func (m MediaStorage) OrphanGrace() time.Duration {
	return time.Duration(m.OrphanGraceMinutes) * time.Minute
}

// Security configuration of the local API
type Security struct {
	APIKey       string `json:"apiKey" yaml:"apiKey"`
	APIKeyHash   string `json:"apiKeyHash" yaml:"apiKeyHash"` // bcrypt
	APIKeyHeader string `json:"apiKeyHeader" yaml:"apiKeyHeader"`
}

// Sync configuration of the remote target and the sync engine
type Sync struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Token    string `json:"token" yaml:"token"`
	APIKey   string `json:"apiKey" yaml:"apiKey"`

	// OAuth2 client credentials, used instead of Token when TokenURL is set
	TokenURL     string   `json:"tokenUrl" yaml:"tokenUrl"`
	ClientID     string   `json:"clientId" yaml:"clientId"`
	ClientSecret string   `json:"clientSecret" yaml:"clientSecret"`
	Scopes       []string `json:"scopes" yaml:"scopes"`

	IntervalSeconds    int `json:"intervalSeconds" yaml:"intervalSeconds"`
	PushTimeoutSeconds int `json:"pushTimeoutSeconds" yaml:"pushTimeoutSeconds"`
	HTTPRetries        int `json:"httpRetries" yaml:"httpRetries"`

	RetryPolicy           string `json:"retryPolicy" yaml:"retryPolicy"`
	MaxAttempts           int    `json:"maxAttempts" yaml:"maxAttempts"`
	RetryBaseDelaySeconds int    `json:"retryBaseDelaySeconds" yaml:"retryBaseDelaySeconds"`
	RetryMaxDelaySeconds  int    `json:"retryMaxDelaySeconds" yaml:"retryMaxDelaySeconds"`

	Media SyncMedia `json:"media" yaml:"media"`
}

// Interval between periodic sync passes
func (s Sync) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// PushTimeout bounds a single record push
func (s Sync) PushTimeout() time.Duration {
	return time.Duration(s.PushTimeoutSeconds) * time.Second
}

// RetryBaseDelay is the first auto-retry delay
func (s Sync) RetryBaseDelay() time.Duration {
	return time.Duration(s.RetryBaseDelaySeconds) * time.Second
}

// RetryMaxDelay caps the auto-retry delay
func (s Sync) RetryMaxDelay() time.Duration {
	return time.Duration(s.RetryMaxDelaySeconds) * time.Second
}

// SyncMedia configures photo uploads to an S3 compatible bucket
type SyncMedia struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	UsePathStyle    bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// Enabled reports whether media uploads are configured
func (m SyncMedia) Enabled() bool {
	return m.Bucket != ""
}

// Network configuration of the connectivity probe
type Network struct {
	ProbeURL            string `json:"probeUrl" yaml:"probeUrl"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	ProbeTimeoutSeconds int    `json:"probeTimeoutSeconds" yaml:"probeTimeoutSeconds"`
}

// Capture configuration
type Capture struct {
	MinTrailPointDistance  float64 `json:"minTrailPointDistance" yaml:"minTrailPointDistance"`
	DrawingMaxPoints       int     `json:"drawingMaxPoints" yaml:"drawingMaxPoints"`
	DrawingRecoveryMinutes int     `json:"drawingRecoveryMinutes" yaml:"drawingRecoveryMinutes"`
	LocateTimeoutSeconds   int     `json:"locateTimeoutSeconds" yaml:"locateTimeoutSeconds"`
}

// Imports configuration of the KML/KMZ drop folder
type Imports struct {
	InboxPath      string `json:"inboxPath" yaml:"inboxPath"`
	DebounceMillis int    `json:"debounceMillis" yaml:"debounceMillis"`
}

// Logging configuration
type Logging struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
}

// Telemetry configuration
type Telemetry struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: "127.0.0.1:5080",
		DatabasePath:  "fieldsync.db",
		MediaStorage: MediaStorage{
			BasePath:      "./media",
			MaxFileSizeMB: 25,
			AllowedExtensions: []string{
				".jpg", ".jpeg", ".png", ".webp", ".heic", ".heif",
			},
			MaintenanceIntervalMinutes: 60,
			OrphanGraceMinutes:         60,
		},
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
		Sync: Sync{
			IntervalSeconds:       300,
			PushTimeoutSeconds:    10,
			HTTPRetries:           3,
			RetryPolicy:           RetryManual,
			MaxAttempts:           5,
			RetryBaseDelaySeconds: 60,
			RetryMaxDelaySeconds:  3600,
			Media: SyncMedia{
				Region: "us-east-1",
			},
		},
		Network: Network{
			PollIntervalSeconds: 30,
			ProbeTimeoutSeconds: 5,
		},
		Capture: Capture{
			MinTrailPointDistance:  2,
			DrawingMaxPoints:       5000,
			DrawingRecoveryMinutes: 60,
			LocateTimeoutSeconds:   3,
		},
		Imports: Imports{
			DebounceMillis: 500,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Telemetry: Telemetry{
			Environment: "device",
			SampleRatio: 0.25,
		},
	}
}

// Load loads configuration from .env, the config file and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := decodeFile(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.MediaStorage.BasePath, 0755); err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(cfg.MediaStorage.BasePath)
	if err != nil {
		return nil, err
	}
	cfg.MediaStorage.BasePath = absPath

	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.ServerAddress, "SERVER_ADDRESS")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.MediaStorage.BasePath, "MEDIA_STORAGE_PATH")
	setString(&cfg.Security.APIKey, "API_KEY")
	setString(&cfg.Security.APIKeyHash, "API_KEY_HASH")

	setString(&cfg.Sync.Endpoint, "SYNC_ENDPOINT")
	setString(&cfg.Sync.Token, "SYNC_TOKEN")
	setString(&cfg.Sync.APIKey, "SYNC_API_KEY")
	setString(&cfg.Sync.TokenURL, "SYNC_TOKEN_URL")
	setString(&cfg.Sync.ClientID, "SYNC_CLIENT_ID")
	setString(&cfg.Sync.ClientSecret, "SYNC_CLIENT_SECRET")
	setInt(&cfg.Sync.IntervalSeconds, "SYNC_INTERVAL_SECONDS")
	setInt(&cfg.Sync.PushTimeoutSeconds, "SYNC_PUSH_TIMEOUT_SECONDS")
	setString(&cfg.Sync.RetryPolicy, "SYNC_RETRY_POLICY")
	setInt(&cfg.Sync.MaxAttempts, "SYNC_MAX_ATTEMPTS")
	setString(&cfg.Sync.Media.Bucket, "SYNC_MEDIA_BUCKET")
	setString(&cfg.Sync.Media.Endpoint, "SYNC_MEDIA_ENDPOINT")
	setString(&cfg.Sync.Media.AccessKeyID, "SYNC_MEDIA_ACCESS_KEY_ID")
	setString(&cfg.Sync.Media.SecretAccessKey, "SYNC_MEDIA_SECRET_ACCESS_KEY")

	setString(&cfg.Network.ProbeURL, "NETWORK_PROBE_URL")
	setInt(&cfg.Network.PollIntervalSeconds, "NETWORK_POLL_INTERVAL_SECONDS")

	setString(&cfg.Imports.InboxPath, "IMPORT_INBOX_PATH")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.File, "LOG_FILE")

	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		cfg.Telemetry.Enabled = enabled == "true" || enabled == "1"
	}
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.Environment, "ENVIRONMENT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	c.Sync.RetryPolicy = strings.ToLower(strings.TrimSpace(c.Sync.RetryPolicy))
	switch c.Sync.RetryPolicy {
	case "":
		c.Sync.RetryPolicy = RetryManual
	case RetryManual, RetryAuto:
	default:
		return fmt.Errorf("invalid sync.retryPolicy %q: must be %q or %q", c.Sync.RetryPolicy, RetryManual, RetryAuto)
	}
	if c.Sync.TokenURL != "" && c.Sync.ClientID == "" {
		return fmt.Errorf("sync.clientId is required when sync.tokenUrl is set")
	}
	if strings.TrimSpace(c.MediaStorage.BasePath) == "" {
		return fmt.Errorf("mediaStorage.basePath cannot be empty")
	}
	return nil
}
