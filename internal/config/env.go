package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds HTTP server configuration. Timeouts default high because
// uploads and LibreOffice conversions can legitimately run for a long time.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// StorageConfig defines the temp root and the disk-space policy around it.
// Thresholds are GiB against the volume holding TempDir.
type StorageConfig struct {
	TempDir          string
	ConvertMinFreeGB float64
	MergeMinFreeGB   float64 // per merge input file
	PurgeBelowGB     float64
	ChunkSizeMB      int
	MaxUploadGB      int
	JanitorInterval  time.Duration
	StaleAge         time.Duration
}

// ConvertConfig defines conversion tool behavior and limits.
type ConvertConfig struct {
	Timeout     time.Duration
	Workers     int
	RenderDPI   int
	JPEGQuality int
}

// S3Config defines optional S3 connectivity for s3:// source refs. Bucket is
// only probed by the dependency health check.
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// RedisConfig defines optional Redis connectivity for conversion history.
type RedisConfig struct {
	URL        string
	HistoryKey string
	HistoryMax int
}

// WebConfig defines dashboard credentials and session lifetime.
type WebConfig struct {
	Username     string
	PasswordHash string
	SessionTTL   time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Axiom   AxiomConfig
	Storage StorageConfig
	Convert ConvertConfig
	S3      S3Config
	Redis   RedisConfig
	Web     WebConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Server defaults
	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     parseDuration(getEnv("READ_TIMEOUT", "2h"), 2*time.Hour),
		WriteTimeout:    parseDuration(getEnv("WRITE_TIMEOUT", "2h"), 2*time.Hour),
		IdleTimeout:     parseDuration(getEnv("IDLE_TIMEOUT", "120s"), 120*time.Second),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/fileconverter.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_fileconverter",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Storage defaults
	cfg.Storage = StorageConfig{
		TempDir:          getEnv("TEMP_DIR", "temp_files"),
		ConvertMinFreeGB: parseFloat(getEnv("CONVERT_MIN_FREE_GB", "10"), 10),
		MergeMinFreeGB:   parseFloat(getEnv("MERGE_MIN_FREE_GB", "0.1"), 0.1),
		PurgeBelowGB:     parseFloat(getEnv("PURGE_BELOW_GB", "5"), 5),
		ChunkSizeMB:      parseInt(getEnv("UPLOAD_CHUNK_MB", "10"), 10),
		MaxUploadGB:      parseInt(getEnv("MAX_UPLOAD_GB", "100"), 100),
		JanitorInterval:  parseDuration(getEnv("JANITOR_INTERVAL", "10m"), 10*time.Minute),
		StaleAge:         parseDuration(getEnv("TEMP_STALE_AGE", "24h"), 24*time.Hour),
	}

	// Convert defaults
	cfg.Convert = ConvertConfig{
		Timeout:     parseDuration(getEnv("CONVERT_TIMEOUT", "1h"), time.Hour),
		Workers:     parseInt(getEnv("CONVERT_WORKERS", "2"), 2),
		RenderDPI:   parseInt(getEnv("RENDER_DPI", "150"), 150),
		JPEGQuality: parseInt(getEnv("JPEG_QUALITY", "95"), 95),
	}

	// S3 defaults (only used when a request carries an s3:// source ref)
	cfg.S3 = S3Config{
		Region:       getEnv("AWS_REGION", "us-east-1"),
		Endpoint:     getEnv("S3_ENDPOINT", ""),
		AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		SecretKey:    getEnv("S3_SECRET_KEY", ""),
		Bucket:       getEnv("S3_BUCKET", ""),
		UsePathStyle: parseBool(getEnv("S3_USE_PATH_STYLE", "false")),
	}

	// Redis defaults (empty URL keeps history in memory)
	cfg.Redis = RedisConfig{
		URL:        getEnv("REDIS_URL", ""),
		HistoryKey: getEnv("HISTORY_KEY", "fileconverter:history"),
		HistoryMax: parseInt(getEnv("HISTORY_MAX", "200"), 200),
	}

	// Web dashboard defaults (disabled unless credentials are set)
	cfg.Web = WebConfig{
		Username:     getEnv("WEB_USERNAME", ""),
		PasswordHash: getEnv("WEB_PASSWORD_HASH", ""),
		SessionTTL:   parseDuration(getEnv("WEB_SESSION_TTL", "12h"), 12*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
