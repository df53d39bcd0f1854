package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Address() != "localhost:8084" {
		t.Errorf("Address() = %q, want localhost:8084", cfg.Address())
	}
	if cfg.Dataset.SeedFile != "" {
		t.Errorf("SeedFile = %q, want empty", cfg.Dataset.SeedFile)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("Session.TTL = %v, want 2h", cfg.Session.TTL)
	}
	if cfg.Upload.MaxBytes != 32<<20 {
		t.Errorf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATASET_FILE", "zara.csv")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("SECURITY_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Dataset.SeedFile != "zara.csv" {
		t.Errorf("SeedFile = %q", cfg.Dataset.SeedFile)
	}
	if cfg.Session.TTL != 15*time.Minute {
		t.Errorf("Session.TTL = %v", cfg.Session.TTL)
	}
	if got := cfg.Security.AllowedOrigins; len(got) != 2 || got[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DASHBOARD_TOP_N=25\nLOG_FORMAT=text\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DASHBOARD_TOP_N")
		os.Unsetenv("LOG_FORMAT")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dashboard.TopN != 25 {
		t.Errorf("TopN = %d, want 25", cfg.Dashboard.TopN)
	}
	if cfg.Logger.Format != "text" {
		t.Errorf("Logger.Format = %q, want text", cfg.Logger.Format)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"port", "SERVER_PORT", "70000", "server port"},
		{"log level", "LOG_LEVEL", "verbose", "invalid log level"},
		{"delimiter", "UPLOAD_DEFAULT_DELIMITER", "pipe", "invalid upload delimiter"},
		{"top n", "DASHBOARD_TOP_N", "0", "top N"},
		{"max bytes", "UPLOAD_MAX_BYTES", "-1", "upload max bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
