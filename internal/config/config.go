package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/cdwc233/WeChat-official-account-management/pkg/logger"
)

type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Database        DatabaseConfig  `yaml:"database"`
	WebsiteDatabase WebsiteDBConfig `yaml:"website_database"`
	Logger          logger.Config   `yaml:"logger"`
	Sync            SyncConfig      `yaml:"sync"`
	WeChat          WeChatConfig    `yaml:"wechat"`
	Crawler         CrawlerConfig   `yaml:"crawler"`
	AI              AIConfig        `yaml:"ai"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Auth            AuthConfig      `yaml:"auth"`
}

// AuthConfig enables TOTP protection of the management API when a secret is
// set. An empty secret leaves the API open.
type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	Mode      string `yaml:"mode"`
	StaticDir string `yaml:"static_dir"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// WebsiteDBConfig points at the remote website MySQL database. It is a
// separate, independently-writable store: no transaction spans it and the
// local database.
type WebsiteDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type SyncConfig struct {
	// PageSize is K: the listing limit and the retention window per origin.
	PageSize   int    `yaml:"page_size"`
	CrawlDelay string `yaml:"crawl_delay"`
}

type WeChatConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccountName    string `yaml:"account_name"`
	AppID          string `yaml:"app_id"`
	AppSecret      string `yaml:"app_secret"`
	CredentialFile string `yaml:"credential_file"`
}

type CrawlerConfig struct {
	SeedURL       string `yaml:"seed_url"`
	AllowedDomain string `yaml:"allowed_domain"`
	LinkSelector  string `yaml:"link_selector"`
}

type AIConfig struct {
	Endpoint      string `yaml:"endpoint"`
	ImageEndpoint string `yaml:"image_endpoint"`
	Model         string `yaml:"model"`
	ImageModel    string `yaml:"image_model"`
	APIKey        string `yaml:"api_key"`
}

type SchedulerConfig struct {
	SyncInterval string `yaml:"sync_interval"`
	Enabled      bool   `yaml:"enabled"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5335
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "static"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.WebsiteDatabase.Port == 0 {
		cfg.WebsiteDatabase.Port = 3306
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 10
	}
	if cfg.Sync.CrawlDelay == "" {
		cfg.Sync.CrawlDelay = "1s"
	}
	if cfg.WeChat.BaseURL == "" {
		cfg.WeChat.BaseURL = "https://mp.weixin.qq.com"
	}
	if cfg.WeChat.CredentialFile == "" {
		cfg.WeChat.CredentialFile = "configs/credential.yaml"
	}
	if cfg.AI.Endpoint == "" {
		cfg.AI.Endpoint = "https://api-inference.modelscope.cn/v1/chat/completions"
	}
	if cfg.AI.ImageEndpoint == "" {
		cfg.AI.ImageEndpoint = "https://api-inference.modelscope.cn/v1/images/generations"
	}
	if cfg.Scheduler.SyncInterval == "" {
		cfg.Scheduler.SyncInterval = "30m"
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = "12h"
	}

	return cfg, nil
}
