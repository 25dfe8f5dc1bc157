package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Chrome     ChromeConfig     `mapstructure:"chrome"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
	Automation AutomationConfig `mapstructure:"automation"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	Charset  string `mapstructure:"charset"`
}

type JWTConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Secret     string `mapstructure:"secret"`
	ExpireTime int    `mapstructure:"expire_time"`
}

type ChromeConfig struct {
	HeadlessMode bool   `mapstructure:"headless"`
	DebugPort    int    `mapstructure:"debug_port"`
	ExecPath     string `mapstructure:"path"`
	RemoteURL    string `mapstructure:"remote_url"`
	UserDataDir  string `mapstructure:"user_data_dir"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
	StartURL     string `mapstructure:"start_url"`
}

type StoreConfig struct {
	// Backend is one of memory, mysql or redis.
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type AutomationConfig struct {
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
}

// settings maps each key to its environment variable and default.
var settings = []struct {
	key string
	env string
	def interface{}
}{
	{"server.port", "SERVER_PORT", "8080"},
	{"server.host", "SERVER_HOST", "0.0.0.0"},
	{"server.mode", "SERVER_MODE", "debug"},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", 30},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", 0},

	{"database.host", "DB_HOST", "127.0.0.1"},
	{"database.port", "DB_PORT", "3306"},
	{"database.username", "DB_USERNAME", "root"},
	{"database.password", "DB_PASSWORD", "root"},
	{"database.name", "DB_NAME", "echoclicker"},
	{"database.charset", "DB_CHARSET", "utf8mb4"},

	{"jwt.enabled", "AUTH_ENABLED", false},
	{"jwt.secret", "JWT_SECRET", "echoclicker-secret-key"},
	{"jwt.expire_time", "JWT_EXPIRE_TIME", 24 * 3600},

	{"chrome.headless", "CHROME_HEADLESS", false},
	{"chrome.debug_port", "CHROME_DEBUG_PORT", 9222},
	{"chrome.path", "CHROME_PATH", ""},
	{"chrome.remote_url", "CHROME_REMOTE_URL", ""},
	{"chrome.user_data_dir", "CHROME_USER_DATA_DIR", ""},
	{"chrome.window_width", "CHROME_WINDOW_WIDTH", 1366},
	{"chrome.window_height", "CHROME_WINDOW_HEIGHT", 900},
	{"chrome.start_url", "CHROME_START_URL", ""},

	{"store.backend", "STORE_BACKEND", "memory"},

	{"redis.addr", "REDIS_ADDR", "127.0.0.1:6379"},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},

	{"nats.url", "NATS_URL", ""},
	{"nats.subject", "NATS_SUBJECT", "echoclicker.events"},

	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "console"},
	{"log.file", "LOG_FILE", ""},
	{"log.max_size", "LOG_MAX_SIZE", 100},
	{"log.max_backups", "LOG_MAX_BACKUPS", 5},
	{"log.max_age", "LOG_MAX_AGE", 30},

	{"automation.element_timeout", "AUTOMATION_ELEMENT_TIMEOUT", 5 * time.Second},
	{"automation.sync_interval", "AUTOMATION_SYNC_INTERVAL", 30 * time.Second},
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment. An empty path looks for ./config.yaml and tolerates its absence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case "memory", "mysql", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Automation.ElementTimeout < 0 {
		return fmt.Errorf("automation.element_timeout must not be negative")
	}
	if c.Automation.SyncInterval <= 0 {
		return fmt.Errorf("automation.sync_interval must be positive")
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is set")
	}
	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
