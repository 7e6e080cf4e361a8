package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Auth.HasAPIKey() {
		t.Fatalf("api key should be disabled by default")
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("origins = %v, want unrestricted", cfg.CORS.AllowedOrigins)
	}
	if cfg.Extractor.Backend != "ytdlp" {
		t.Fatalf("backend = %q", cfg.Extractor.Backend)
	}
	if cfg.Storage.ChunkSize != 8192 {
		t.Fatalf("chunk size = %d", cfg.Storage.ChunkSize)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
cors:
  allowed_origins: ["https://a.example"]
ytdlp:
  binary_path: /opt/yt-dlp
  timeout: 42
cleanup:
  enabled: false
  max_age: 30m
extractor:
  backend: " Native "
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.example"}) {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.YTDLP.BinaryPath != "/opt/yt-dlp" || cfg.YTDLP.GetTimeout() != 42*time.Second {
		t.Fatalf("ytdlp = %+v", cfg.YTDLP)
	}
	if cfg.Cleanup.Enabled || cfg.Cleanup.MaxAge != 30*time.Minute {
		t.Fatalf("cleanup = %+v", cfg.Cleanup)
	}
	if cfg.Extractor.Backend != "native" {
		t.Fatalf("backend = %q", cfg.Extractor.Backend)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nauth:\n  api_key: from-file\n")
	t.Setenv("PORT", "7000")
	t.Setenv("API_KEY", "from-env")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COOKIES_FILE_PATH", "/secrets/cookies.txt")
	t.Setenv("MAX_CONCURRENT", "2")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Auth.APIKey != "from-env" {
		t.Fatalf("api key = %q", cfg.Auth.APIKey)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("origins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	if cfg.YTDLP.CookiesFile != "/secrets/cookies.txt" {
		t.Fatalf("cookies = %q", cfg.YTDLP.CookiesFile)
	}
	if cfg.Limits.MaxConcurrentExtractions != 2 {
		t.Fatalf("max concurrent = %d", cfg.Limits.MaxConcurrentExtractions)
	}
}

func TestLoadConfigYAMLWildcardOrigins(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{"wildcard", "cors:\n  allowed_origins: [\"*\"]\n", nil},
		{"wildcard among others", "cors:\n  allowed_origins: [\"https://a.example\", \"*\"]\n", nil},
		{"empty list", "cors:\n  allowed_origins: []\n", nil},
		{"trimmed", "cors:\n  allowed_origins: [\" https://a.example \", \"\"]\n", []string{"https://a.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, tt.want) {
				t.Fatalf("origins = %#v, want %#v", cfg.CORS.AllowedOrigins, tt.want)
			}
		})
	}
}

func TestLoadConfigInvalidPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for invalid PORT")
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"*", nil},
		{"https://a.example,*", nil},
		{" https://a.example ,, https://b.example", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		if got := ParseOrigins(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
