package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Files    FilesConfig    `mapstructure:"files"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	Debug bool   `mapstructure:"debug"`
}

type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout" validate:"gt=0"`
	ChatTimeout    time.Duration `mapstructure:"chat_timeout" validate:"gt=0"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=memory bolt postgres redis"`
	BoltPath string         `mapstructure:"bolt_path" validate:"required_if=Driver bolt"`
	Database DatabaseConfig `mapstructure:"database"`
	RedisURL string         `mapstructure:"redis_url" validate:"required_if=Driver redis"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type CacheConfig struct {
	ThreadTTL time.Duration `mapstructure:"thread_ttl" validate:"gt=0"`
}

// FilesConfig controls where received documents are kept. MaxSize is in bytes.
type FilesConfig struct {
	CacheDir string `mapstructure:"cache_dir" validate:"required"`
	MaxSize  int64  `mapstructure:"max_size" validate:"gt=0"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path, applies .env and environment overrides, and
// validates the result. A missing file is not an error; defaults and the
// environment may be enough.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.request_timeout", 30*time.Second)
	v.SetDefault("backend.upload_timeout", 5*time.Minute)
	v.SetDefault("backend.chat_timeout", 2*time.Minute)
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.bolt_path", "finbot.db")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.user", "postgres")
	v.SetDefault("storage.database.sslmode", "disable")
	v.SetDefault("cache.thread_ttl", 5*time.Minute)
	v.SetDefault("files.cache_dir", "data/files")
	v.SetDefault("files.max_size", 20<<20)
	v.SetDefault("logging.level", "info")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Storage.Database = dbConfig
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Storage.RedisURL = redisURL
	}
	if backendURL := v.GetString("BACKEND_URL"); backendURL != "" {
		config.Backend.BaseURL = backendURL
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}
