package common

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Log      LogConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Ledger   LedgerConfig
	Journal  JournalConfig
	Telegram TelegramConfig
	Inbox    InboxConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Health   HealthConfig
}

// LogConfig selects the slog handler used by the binaries
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftoppm    string
	Tesseract   string
	Lang        string
	DPI         int
	MaxPages    int
	Concurrency int
	TessdataDir string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider       string // openai | vertex
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	Timeout        time.Duration
	VertexProject  string
	VertexLocation string
	VertexModel    string
}

// StorageConfig selects and configures the durable document store
type StorageConfig struct {
	Backend         string // drive | gcs | s3
	FolderID        string
	GCSBucket       string
	S3Bucket        string
	AWSRegion       string
	CredentialsFile string
	CredentialsJSON []byte
}

// LedgerConfig selects and configures the tabular ledger
type LedgerConfig struct {
	Backend       string // sheets | xlsx
	SpreadsheetID string
	SheetRange    string
	XLSXPath      string
}

// JournalConfig configures the optional run journal; an empty DSN disables it
type JournalConfig struct {
	DSN string
}

// TelegramConfig holds bot intake configuration
type TelegramConfig struct {
	Token       string
	PollTimeout int // seconds
}

// InboxConfig configures the watched inbox directory
type InboxConfig struct {
	Dir string
}

// PipelineConfig holds per-stage timeouts
type PipelineConfig struct {
	RasterizeTimeout time.Duration
	OCRTimeout       time.Duration
	ModelTimeout     time.Duration
	PublishTimeout   time.Duration
	LedgerTimeout    time.Duration
}

// QueueConfig sizes the async worker pool
type QueueConfig struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// HealthConfig holds the gRPC health endpoint address
type HealthConfig struct {
	Addr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		OCR: OCRConfig{
			Pdftoppm:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_PATH", "tesseract"),
			Lang:        getEnv("OCR_LANG", "rus+eng"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			Concurrency: getEnvAsInt("OCR_CONCURRENCY", 4),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
		},
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "openai"),
			Model:          getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:    getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			VertexProject:  getEnv("VERTEX_PROJECT", ""),
			VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
			VertexModel:    getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", "drive"),
			FolderID:        getEnv("FOLDER_ID", ""),
			GCSBucket:       getEnv("GCS_BUCKET", ""),
			S3Bucket:        getEnv("S3_BUCKET", ""),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			CredentialsJSON: getEnvAsBase64("SERVICE_ACCOUNT_JSON_BASE64"),
		},
		Ledger: LedgerConfig{
			Backend:       getEnv("LEDGER_BACKEND", "sheets"),
			SpreadsheetID: getEnv("SPREADSHEET_ID", ""),
			SheetRange:    getEnv("SHEET_RANGE", "Sheet1"),
			XLSXPath:      getEnv("LEDGER_XLSX_PATH", "./ledger.xlsx"),
		},
		Journal: JournalConfig{
			DSN: getEnv("JOURNAL_DSN", ""),
		},
		Telegram: TelegramConfig{
			Token:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			PollTimeout: getEnvAsInt("TELEGRAM_POLL_TIMEOUT", 60),
		},
		Inbox: InboxConfig{
			Dir: getEnv("INBOX_DIR", ""),
		},
		Pipeline: PipelineConfig{
			RasterizeTimeout: getEnvAsDuration("RASTERIZE_TIMEOUT", 60*time.Second),
			OCRTimeout:       getEnvAsDuration("OCR_TIMEOUT", 120*time.Second),
			ModelTimeout:     getEnvAsDuration("MODEL_TIMEOUT", 60*time.Second),
			PublishTimeout:   getEnvAsDuration("PUBLISH_TIMEOUT", 60*time.Second),
			LedgerTimeout:    getEnvAsDuration("LEDGER_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			Workers:    getEnvAsInt("WORKERS", 2),
			Size:       getEnvAsInt("QUEUE_SIZE", 32),
			JobTimeout: getEnvAsDuration("JOB_TIMEOUT", 5*time.Minute),
		},
		Health: HealthConfig{
			Addr: getEnv("HEALTH_ADDR", ":8081"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBase64(key string) []byte {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("config.base64.invalid", "key", key, "error", err)
		return nil
	}
	return decoded
}

// Validate checks the settings required by the selected backends.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "vertex"))
	switch c.LLM.Provider {
	case "openai":
		v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
	case "vertex":
		v.Field("VERTEX_PROJECT", c.LLM.VertexProject, Required)
	}

	v.Field("STORAGE_BACKEND", c.Storage.Backend, OneOf("drive", "gcs", "s3"))
	switch c.Storage.Backend {
	case "drive":
		v.Field("FOLDER_ID", c.Storage.FolderID, Required)
	case "gcs":
		v.Field("GCS_BUCKET", c.Storage.GCSBucket, Required)
	case "s3":
		v.Field("S3_BUCKET", c.Storage.S3Bucket, Required)
	}

	v.Field("LEDGER_BACKEND", c.Ledger.Backend, OneOf("sheets", "xlsx"))
	switch c.Ledger.Backend {
	case "sheets":
		v.Field("SPREADSHEET_ID", c.Ledger.SpreadsheetID, Required)
	case "xlsx":
		v.Field("LEDGER_XLSX_PATH", c.Ledger.XLSXPath, Required)
	}

	v.Field("OCR_DPI", c.OCR.DPI, Positive)
	v.Field("WORKERS", c.Queue.Workers, Positive)
	v.Field("JOB_TIMEOUT", c.Queue.JobTimeout, Positive)
	return v.Err("CONFIG_ERROR")
}

// NewLogger builds the process logger from the Log section.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// String prints the non-secret parts of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("llm=%s/%s storage=%s ledger=%s journal=%t telegram=%t inbox=%q workers=%d",
		c.LLM.Provider, c.LLM.Model, c.Storage.Backend, c.Ledger.Backend,
		c.Journal.DSN != "", c.Telegram.Token != "", c.Inbox.Dir, c.Queue.Workers)
}
