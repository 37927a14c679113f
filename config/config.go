package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cwrk-planet/poker-service/internal/cards"
	"github.com/cwrk-planet/poker-service/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	defaultPath = "./config/config.yaml"
)

type GRPC struct {
	Addr        string        `yaml:"addr" env:"GRPC_ADDR"`
	CallTimeout time.Duration `yaml:"callTimeout" env:"GRPC_CALL_TIMEOUT"` // guard для вызовов без deadline
}

type HTTP struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"readTimeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" env:"HTTP_IDLE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"HTTP_REQUEST_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowedOrigins" env:"HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

type Logging struct {
	Env       string `yaml:"env" env:"LOG_ENV"`              // dev|stage|prod
	Service   string `yaml:"service" env:"LOG_SERVICE"`      // poker-service
	Version   string `yaml:"version" env:"LOG_VERSION"`      // v0.1.0
	Backend   string `yaml:"backend" env:"LOG_BACKEND"`      // std|zap
	AddSource bool   `yaml:"addSource" env:"LOG_ADD_SOURCE"` // false|true
	Debug     bool   `yaml:"debug" env:"LOG_DEBUG"`          // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns          int32         `yaml:"maxConns" env:"POSTGRES_MAX_CONNS"`
	MinConns          int32         `yaml:"minConns" env:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime" env:"POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime" env:"POSTGRES_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod" env:"POSTGRES_HEALTH_CHECK_PERIOD"`
	ApplicationName   string        `yaml:"applicationName" env:"POSTGRES_APPLICATION_NAME"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"` // memory|postgres
}

type Room struct {
	DefaultID string `yaml:"defaultId" env:"ROOM_ID"`
	Deck      string `yaml:"deck" env:"ROOM_DECK"`
}

// Client — настройки консольного клиента.
type Client struct {
	KVPath string `yaml:"kvPath" env:"POKER_KV_PATH"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Storage  Storage  `yaml:"storage"`
	Room     Room     `yaml:"room"`
	Client   Client   `yaml:"client"`
}

// LoadConfig читает .env (если есть), затем YAML из CONFIG_PATH и поверх
// накладывает переменные окружения. Файл по умолчанию необязателен.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	required := path != ""
	if path == "" {
		path = defaultPath
	}
	return Load(path, required)
}

func Load(path string, required bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9090"
	}
	if c.GRPC.CallTimeout <= 0 {
		c.GRPC.CallTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "poker-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Room.DefaultID == "" {
		c.Room.DefaultID = domain.DefaultRoomID
	}
	if c.Room.Deck == "" {
		c.Room.Deck = cards.DefaultDeck
	}
	if c.Client.KVPath == "" {
		c.Client.KVPath = "./poker.db"
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for storage.driver=postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if !domain.ValidID(c.Room.DefaultID) {
		return fmt.Errorf("invalid room.defaultId %q", c.Room.DefaultID)
	}
	if _, err := cards.Deck(c.Room.Deck); err != nil {
		return fmt.Errorf("room.deck: %w", err)
	}
	return nil
}
