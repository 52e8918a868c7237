package shared

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	WeWork     WeWorkConfig     `yaml:"wework"`
	TokenCache TokenCacheConfig `yaml:"token_cache"`
	AI         AIConfig         `yaml:"ai"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CallbackPath    string        `yaml:"callback_path"`
}

// WeWorkConfig 企业微信配置
type WeWorkConfig struct {
	CorpID         string `yaml:"corp_id"`
	Token          string `yaml:"token"`
	EncodingAESKey string `yaml:"encoding_aes_key"`
	AgentID        int64  `yaml:"agent_id"`
	CorpSecret     string `yaml:"corp_secret"`
	APIBaseURL     string `yaml:"api_base_url"`
}

// TokenCacheConfig access_token 缓存配置
type TokenCacheConfig struct {
	Driver        string `yaml:"driver"` // memory | redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// AIConfig AI 助手配置，BaseURL 为空时助手原样回显文本
type AIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AssistantConfig 应用回复方式配置
type AssistantConfig struct {
	ReplyMode   string `yaml:"reply_mode"` // passive | active
	WelcomeText string `yaml:"welcome_text"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"

	ReplyModePassive = "passive"
	ReplyModeActive  = "active"

	// DefaultAPIBaseURL 企业微信服务端 API 地址
	DefaultAPIBaseURL = "https://qyapi.weixin.qq.com/cgi-bin"
)

var alphanumericRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// LoadConfig 从 YAML 文件加载并验证配置
// 文件内容中的 ${VAR} 会先用环境变量展开，便于注入密钥
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(data))))
}

// ParseConfig 解析 YAML 配置，填充默认值后验证
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Addr, ":8080")
	setDefault(&c.Server.CallbackPath, "/callback")
	setDefaultDuration(&c.Server.ReadTimeout, 10*time.Second)
	setDefaultDuration(&c.Server.WriteTimeout, 10*time.Second)
	setDefaultDuration(&c.Server.ShutdownTimeout, 15*time.Second)

	setDefault(&c.WeWork.APIBaseURL, DefaultAPIBaseURL)
	c.WeWork.APIBaseURL = strings.TrimRight(c.WeWork.APIBaseURL, "/")

	setDefault(&c.TokenCache.Driver, TokenCacheMemory)
	setDefault(&c.TokenCache.KeyPrefix, "wecom:access_token:")

	setDefaultDuration(&c.AI.Timeout, 30*time.Second)

	setDefault(&c.Assistant.ReplyMode, ReplyModePassive)

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}

	setDefault(&c.Metrics.Path, "/metrics")
}

func (c *Config) validate() error {
	// server
	if err := validateAddr(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if !strings.HasPrefix(c.Server.CallbackPath, "/") {
		return fmt.Errorf("server.callback_path: must start with /")
	}

	// wework.corp_id
	if c.WeWork.CorpID == "" {
		return fmt.Errorf("wework.corp_id: must not be empty")
	}

	// wework.token
	if c.WeWork.Token == "" {
		return fmt.Errorf("wework.token: must not be empty")
	}
	if len(c.WeWork.Token) > 32 {
		return fmt.Errorf("wework.token: must be at most 32 characters, got %d", len(c.WeWork.Token))
	}
	if !alphanumericRegex.MatchString(c.WeWork.Token) {
		return fmt.Errorf("wework.token: must contain only alphanumeric characters")
	}

	// wework.encoding_aes_key
	if len(c.WeWork.EncodingAESKey) != 43 {
		return fmt.Errorf("wework.encoding_aes_key: must be exactly 43 characters, got %d", len(c.WeWork.EncodingAESKey))
	}
	if !alphanumericRegex.MatchString(c.WeWork.EncodingAESKey) {
		return fmt.Errorf("wework.encoding_aes_key: must contain only alphanumeric characters")
	}

	if err := validateBaseURL(c.WeWork.APIBaseURL); err != nil {
		return fmt.Errorf("wework.api_base_url: %w", err)
	}

	// token_cache
	switch c.TokenCache.Driver {
	case TokenCacheMemory:
	case TokenCacheRedis:
		if err := validateAddr(c.TokenCache.RedisAddr); err != nil {
			return fmt.Errorf("token_cache.redis_addr: %w", err)
		}
	default:
		return fmt.Errorf("token_cache.driver: unsupported driver %q", c.TokenCache.Driver)
	}

	// ai.base_url 可选
	if c.AI.BaseURL != "" {
		if err := validateBaseURL(c.AI.BaseURL); err != nil {
			return fmt.Errorf("ai.base_url: %w", err)
		}
	}

	// assistant
	switch c.Assistant.ReplyMode {
	case ReplyModePassive:
	case ReplyModeActive:
		if c.WeWork.CorpSecret == "" {
			return fmt.Errorf("wework.corp_secret: required when assistant.reply_mode is active")
		}
		if c.WeWork.AgentID <= 0 {
			return fmt.Errorf("wework.agent_id: required when assistant.reply_mode is active")
		}
	default:
		return fmt.Errorf("assistant.reply_mode: must be passive or active, got %q", c.Assistant.ReplyMode)
	}

	// log
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format)
	}

	// metrics
	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path: must start with /")
		}
		if c.Metrics.Path == c.Server.CallbackPath {
			return fmt.Errorf("metrics.path: must differ from server.callback_path")
		}
	}

	return nil
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDefaultDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

func validateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("must not be empty")
	}
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	return nil
}

func validateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	return nil
}
