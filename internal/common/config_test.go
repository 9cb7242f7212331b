package common

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"OCR_LANG", "OPENAI_MODEL", "STORAGE_BACKEND", "LEDGER_BACKEND", "OCR_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()

	if cfg.OCR.Lang != "rus+eng" {
		t.Errorf("OCR.Lang = %q, want rus+eng", cfg.OCR.Lang)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("LLM.Temperature = %v, want 0", cfg.LLM.Temperature)
	}
	if cfg.Storage.Backend != "drive" || cfg.Ledger.Backend != "sheets" {
		t.Errorf("backends = %s/%s", cfg.Storage.Backend, cfg.Ledger.Backend)
	}
	if cfg.Pipeline.OCRTimeout != 120*time.Second {
		t.Errorf("OCRTimeout = %v", cfg.Pipeline.OCRTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	creds := `{"type":"service_account"}`
	t.Setenv("SERVICE_ACCOUNT_JSON_BASE64", base64.StdEncoding.EncodeToString([]byte(creds)))
	t.Setenv("OCR_DPI", "150")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("OCR_MAX_PAGES", "not-a-number")

	cfg := LoadConfig()
	if string(cfg.Storage.CredentialsJSON) != creds {
		t.Errorf("CredentialsJSON = %q", cfg.Storage.CredentialsJSON)
	}
	if cfg.OCR.DPI != 150 {
		t.Errorf("DPI = %d", cfg.OCR.DPI)
	}
	if cfg.Pipeline.ModelTimeout != 5*time.Second {
		t.Errorf("ModelTimeout = %v", cfg.Pipeline.ModelTimeout)
	}
	if cfg.OCR.MaxPages != 0 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.OCR.MaxPages)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		c := LoadConfig()
		c.LLM.Provider = "openai"
		c.LLM.APIKey = "sk-test"
		c.Storage.Backend = "drive"
		c.Storage.FolderID = "folder"
		c.Ledger.Backend = "sheets"
		c.Ledger.SpreadsheetID = "sheet"
		c.OCR.DPI = 300
		c.Queue.Workers = 1
		c.Queue.JobTimeout = time.Minute
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: "STORAGE_BACKEND"},
		{name: "gcs needs bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs" }, wantErr: "GCS_BUCKET"},
		{name: "xlsx ledger", mutate: func(c *Config) { c.Ledger.Backend = "xlsx"; c.Ledger.SpreadsheetID = "" }},
		{name: "vertex needs project", mutate: func(c *Config) { c.LLM.Provider = "vertex" }, wantErr: "VERTEX_PROJECT"},
		{name: "zero workers", mutate: func(c *Config) { c.Queue.Workers = 0 }, wantErr: "WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidInput: %v", err)
			}
		})
	}
}
