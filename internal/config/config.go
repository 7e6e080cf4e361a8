package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置, 启动时构建一次, 之后只读
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	YTDLP     YTDLPConfig     `yaml:"ytdlp"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Storage   StorageConfig   `yaml:"storage"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Mode           string        `yaml:"mode"` // debug, release, test
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"` // 0 表示不限制, 大文件流式下载需要
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// CORSConfig CORS 配置, AllowedOrigins 为空表示允许所有来源
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// AuthConfig 鉴权配置, APIKey 为空表示不校验
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// YTDLPConfig yt-dlp 配置
type YTDLPConfig struct {
	BinaryPath  string   `yaml:"binary_path"`
	Timeout     int      `yaml:"timeout"` // 单次调用超时(秒)
	CookiesFile string   `yaml:"cookies_file"`
	Proxy       string   `yaml:"proxy"`
	DefaultArgs []string `yaml:"default_args"`
}

// ExtractorConfig 提取后端选择
type ExtractorConfig struct {
	Backend string `yaml:"backend"` // ytdlp, native
}

// StorageConfig 临时存储配置
type StorageConfig struct {
	TempDir   string `yaml:"temp_dir"`
	ChunkSize int    `yaml:"chunk_size"`
}

// CleanupConfig 孤立临时目录清理配置
type CleanupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// LimitsConfig 并发限制
type LimitsConfig struct {
	MaxConcurrentExtractions int `yaml:"max_concurrent_extractions"`
}

// RateLimitConfig 限流配置, RPS 为 0 表示关闭
type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
	// IdleTTL 某个 IP 超过该时长无请求后回收其限流器
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// GetTimeout 获取 yt-dlp 超时时间
func (c *YTDLPConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// HasAPIKey 是否启用了 API Key 校验
func (c *AuthConfig) HasAPIKey() bool {
	return c.APIKey != ""
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8000,
			Mode:        "release",
			ReadTimeout: 30 * time.Second,
		},
		YTDLP: YTDLPConfig{
			BinaryPath:  "yt-dlp",
			Timeout:     600,
			DefaultArgs: []string{"--no-warnings", "--quiet"},
		},
		Extractor: ExtractorConfig{Backend: "ytdlp"},
		Storage: StorageConfig{
			TempDir:   filepath.Join(os.TempDir(), "youtube-server"),
			ChunkSize: 8192,
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
			MaxAge:   2 * time.Hour,
		},
		Limits:    LimitsConfig{MaxConcurrentExtractions: 4},
		RateLimit: RateLimitConfig{Burst: 20, IdleTTL: 10 * time.Minute},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig 加载配置: 默认值 -> yaml 文件(可选) -> .env -> 环境变量
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 配置文件可选
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnv 从环境变量覆盖配置
func applyEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}

	if origins, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = ParseOrigins(origins)
	}

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Auth.APIKey = apiKey
	}

	// yt-dlp
	if cookies := os.Getenv("COOKIES_FILE_PATH"); cookies != "" {
		cfg.YTDLP.CookiesFile = cookies
	}
	if bin := os.Getenv("YTDLP_PATH"); bin != "" {
		cfg.YTDLP.BinaryPath = bin
	}
	if timeout := os.Getenv("YTDLP_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid YTDLP_TIMEOUT %q: %w", timeout, err)
		}
		cfg.YTDLP.Timeout = t
	}
	if proxy := os.Getenv("YTDLP_PROXY"); proxy != "" {
		cfg.YTDLP.Proxy = proxy
	}

	if backend := os.Getenv("EXTRACTOR_BACKEND"); backend != "" {
		cfg.Extractor.Backend = backend
	}
	if dir := os.Getenv("TEMP_DIR"); dir != "" {
		cfg.Storage.TempDir = dir
	}
	if maxConc := os.Getenv("MAX_CONCURRENT"); maxConc != "" {
		n, err := strconv.Atoi(maxConc)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENT %q: %w", maxConc, err)
		}
		cfg.Limits.MaxConcurrentExtractions = n
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return nil
}

// applyDefaults 修正非法或缺省值
func applyDefaults(cfg *Config) {
	cfg.CORS.AllowedOrigins = normalizeOrigins(cfg.CORS.AllowedOrigins)
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.YTDLP.BinaryPath == "" {
		cfg.YTDLP.BinaryPath = "yt-dlp"
	}
	if cfg.YTDLP.Timeout <= 0 {
		cfg.YTDLP.Timeout = 600
	}
	cfg.Extractor.Backend = strings.ToLower(strings.TrimSpace(cfg.Extractor.Backend))
	if cfg.Extractor.Backend == "" {
		cfg.Extractor.Backend = "ytdlp"
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = filepath.Join(os.TempDir(), "youtube-server")
	}
	if cfg.Storage.ChunkSize <= 0 {
		cfg.Storage.ChunkSize = 8192
	}
	if cfg.Cleanup.Interval <= 0 {
		cfg.Cleanup.Interval = 10 * time.Minute
	}
	if cfg.Cleanup.MaxAge <= 0 {
		cfg.Cleanup.MaxAge = 2 * time.Hour
	}
	if cfg.Limits.MaxConcurrentExtractions <= 0 {
		cfg.Limits.MaxConcurrentExtractions = 4
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.RateLimit.IdleTTL <= 0 {
		cfg.RateLimit.IdleTTL = 10 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ParseOrigins 解析逗号分隔的来源列表, "*" 或空表示允许所有来源 (返回 nil)
func ParseOrigins(raw string) []string {
	return normalizeOrigins(strings.Split(raw, ","))
}

// normalizeOrigins 去掉空白项, 含 "*" 时返回 nil
func normalizeOrigins(list []string) []string {
	var origins []string
	for _, origin := range list {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			return nil
		}
		origins = append(origins, origin)
	}
	return origins
}
