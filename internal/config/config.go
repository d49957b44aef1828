package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// ProviderConfig points at the upstream mailbox API and the OAuth token
// endpoint used to refresh expired credentials.
type ProviderConfig struct {
	BaseURL      string  `yaml:"base_url"`
	TokenURL     string  `yaml:"token_url"`
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	PushTopic    string  `yaml:"push_topic"`
	QPS          float64 `yaml:"qps"`
}

// SyncConfig bounds one reconciliation pass.
type SyncConfig struct {
	MaxHistoryPages int    `yaml:"max_history_pages"`
	BackfillSize    int64  `yaml:"backfill_size"`
	Schedule        string `yaml:"schedule"`
	TokenKey        string `yaml:"token_key"` // hex, 32 bytes once decoded
}

// WebhookConfig configures push-notification verification.
type WebhookConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	MQ       MQConfig       `yaml:"mq"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Sync     SyncConfig     `yaml:"sync"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.MaxHistoryPages == 0 {
		cfg.Sync.MaxHistoryPages = 10000
	}
	if cfg.Sync.BackfillSize == 0 {
		cfg.Sync.BackfillSize = 100
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "@every 5m"
	}
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if id := os.Getenv("PROVIDER_CLIENT_ID"); id != "" {
		cfg.Provider.ClientID = id
	}
	if secret := os.Getenv("PROVIDER_CLIENT_SECRET"); secret != "" {
		cfg.Provider.ClientSecret = secret
	}
	if key := os.Getenv("SYNC_TOKEN_KEY"); key != "" {
		cfg.Sync.TokenKey = key
	}
	if secret := os.Getenv("WEBHOOK_JWT_SECRET"); secret != "" {
		cfg.Webhook.JWTSecret = secret
	}
}
