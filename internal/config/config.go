package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration document shared by the proxy and the chat
// server. It is loaded from a YAML file with environment overrides applied on
// top, so a bare environment-only deployment works without any file.
type Config struct {
	Proxy         ProxyConfig         `yaml:"proxy"`
	ChatServer    ChatServerConfig    `yaml:"chat_server"`
	AccessControl AccessControlConfig `yaml:"access_control"`
	Security      SecurityConfig      `yaml:"security"`
	Inference     InferenceConfig     `yaml:"inference"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ProxyConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BackendURL     string        `yaml:"backend_url"`
	ForwardTimeout time.Duration `yaml:"-"`

	ForwardTimeoutRaw string `yaml:"forward_timeout"`
}

type ChatServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AccessControlConfig struct {
	AllowedUseCases     []string          `yaml:"allowed_use_cases"`
	UseCaseDescriptions map[string]string `yaml:"use_case_descriptions"`
}

type SecurityConfig struct {
	RequireUseCaseHeader  bool `yaml:"require_use_case_header"`
	CaseSensitiveMatching bool `yaml:"case_sensitive_matching"`
	LogRejectedRequests   bool `yaml:"log_rejected_requests"`
}

type InferenceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	DefaultModel   string        `yaml:"default_model"`
	RequestTimeout time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Encoding     string `yaml:"encoding"`
	Development  bool   `yaml:"development"`
	EnableCaller bool   `yaml:"enable_caller"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration the system ships with. The allowlist
// mirrors the documented client registrations.
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Host:           "0.0.0.0",
			Port:           8001,
			BackendURL:     "http://localhost:8002",
			ForwardTimeout: 30 * time.Second,
		},
		ChatServer: ChatServerConfig{
			Host: "0.0.0.0",
			Port: 8002,
		},
		AccessControl: AccessControlConfig{
			AllowedUseCases: []string{"100000", "100050", "101966", "102550", "103366"},
			UseCaseDescriptions: map[string]string{
				"100000": "Primary client application",
				"100050": "Mobile application v2",
				"101966": "Analytics dashboard",
				"102550": "Admin panel interface",
				"103366": "External API integration",
			},
		},
		Security: SecurityConfig{
			RequireUseCaseHeader:  true,
			CaseSensitiveMatching: false,
			LogRejectedRequests:   true,
		},
		Inference: InferenceConfig{
			BaseURL:        "http://localhost:11434/v1",
			DefaultModel:   "llama2",
			RequestTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "console",
			ServiceName: "proxy-uc-genie",
		},
	}
}

// Load reads the YAML document at path and applies environment overrides.
// A missing file is not an error: defaults plus the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.resolveDurations(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Path returns the config file location, honoring the CONFIG_PATH override.
func Path() string {
	return envOrDefault("CONFIG_PATH", "config.yaml")
}

func (c *Config) applyEnv() {
	c.Proxy.Host = envOrDefault("PROXY_HOST", c.Proxy.Host)
	c.Proxy.Port = parseInt(os.Getenv("PROXY_PORT"), c.Proxy.Port)
	c.Proxy.BackendURL = envOrDefault("BACKEND_URL", c.Proxy.BackendURL)

	c.ChatServer.Host = envOrDefault("CHAT_HOST", c.ChatServer.Host)
	c.ChatServer.Port = parseInt(os.Getenv("CHAT_PORT"), c.ChatServer.Port)

	c.Inference.BaseURL = envOrDefault("INFERENCE_BASE_URL", c.Inference.BaseURL)
	c.Inference.APIKey = envOrDefault("INFERENCE_API_KEY", c.Inference.APIKey)
	c.Inference.DefaultModel = envOrDefault("INFERENCE_MODEL", c.Inference.DefaultModel)

	c.Logging.Level = envOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Encoding = envOrDefault("LOG_ENCODING", c.Logging.Encoding)
	c.Logging.Development = parseBool(os.Getenv("LOG_DEVELOPMENT"), c.Logging.Development)
	c.Logging.EnableCaller = parseBool(os.Getenv("LOG_CALLER"), c.Logging.EnableCaller)
}

func (c *Config) resolveDurations() error {
	var err error
	if c.Proxy.ForwardTimeout, err = resolveDuration(c.Proxy.ForwardTimeoutRaw, c.Proxy.ForwardTimeout, 30*time.Second); err != nil {
		return fmt.Errorf("proxy.forward_timeout: %w", err)
	}
	if c.Inference.RequestTimeout, err = resolveDuration(c.Inference.RequestTimeoutRaw, c.Inference.RequestTimeout, 60*time.Second); err != nil {
		return fmt.Errorf("inference.request_timeout: %w", err)
	}
	return nil
}

func resolveDuration(raw string, current, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		if current > 0 {
			return current, nil
		}
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseBool(value string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}
