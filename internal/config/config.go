package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultServerAddress     = ":8090"
	DefaultCompletionBaseURL = "https://api.openai.com/v1"
	DefaultStallDelay        = time.Second
	DefaultRedisChannel      = "jarvis:conversation"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig      `json:"basic_config"`
	Completion  CompletionConfig `json:"completion"`
	Webhook     WebhookConfig    `json:"webhook"`
	Redis       RedisConfig      `json:"redis"`
	Log         LogConfig        `json:"log"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	NodeID        int64  `json:"node_id"`
	// StallDelayMS delays the fallback reply sent when no API key is configured.
	StallDelayMS int `json:"stall_delay_ms"`
}

type CompletionConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type WebhookConfig struct {
	URL string `json:"url"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// StallDelay returns the configured stall delay or the default.
func (c BasicConfig) StallDelay() time.Duration {
	if c.StallDelayMS <= 0 {
		return DefaultStallDelay
	}
	return time.Duration(c.StallDelayMS) * time.Millisecond
}

// Load reads configuration from the provided path (defaults to config.json) and
// applies environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve config path")
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "decode config")
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, errors.Wrapf(err, "open config %s", absPath)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	num := func(key string, set func(int64)) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse %s", key)
		}
		set(n)
		return nil
	}

	str(&cfg.Completion.APIKey, "OPENAI_API_KEY", "NEXT_PUBLIC_OPENAI_API_KEY")
	str(&cfg.Completion.BaseURL, "OPENAI_BASE_URL")
	str(&cfg.Webhook.URL, "N8N_WEBHOOK_URL")
	str(&cfg.BasicConfig.ServerAddress, "JARVIS_ADDR")
	str(&cfg.Log.Level, "JARVIS_LOG_LEVEL")
	str(&cfg.Log.Format, "JARVIS_LOG_FORMAT")
	str(&cfg.Redis.Password, "REDIS_PASSWORD")
	str(&cfg.Redis.Channel, "REDIS_CHANNEL")

	if addr, ok := lookup("REDIS_ADDR"); ok && strings.TrimSpace(addr) != "" {
		host, port, err := splitHostPort(strings.TrimSpace(addr))
		if err != nil {
			return err
		}
		cfg.Redis.Enabled = true
		cfg.Redis.Host = host
		cfg.Redis.Port = port
	}

	if err := num("JARVIS_STALL_DELAY_MS", func(n int64) { cfg.BasicConfig.StallDelayMS = int(n) }); err != nil {
		return err
	}
	if err := num("JARVIS_NODE_ID", func(n int64) { cfg.BasicConfig.NodeID = n }); err != nil {
		return err
	}
	return num("REDIS_DB", func(n int64) { cfg.Redis.DB = int(n) })
}

func applyDefaults(cfg *Config) {
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = DefaultCompletionBaseURL
	}
	cfg.Completion.BaseURL = strings.TrimRight(cfg.Completion.BaseURL, "/")
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = DefaultRedisChannel
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 0, nil
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, errors.Wrapf(err, "parse REDIS_ADDR port %q", addr)
	}
	return addr[:idx], port, nil
}
