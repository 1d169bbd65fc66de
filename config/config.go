package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/service"

	"gopkg.in/yaml.v3"
)

const DefaultPort = 8765

type HTTP struct {
	Addr string `yaml:"addr"` // :8765
}

type GRPC struct {
	Addr string `yaml:"addr"` // пусто: gRPC выключен
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // coop-relay
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN             string `yaml:"dsn"` // пусто: журнал выключен
	MaxConns        int32  `yaml:"maxConns"`
	ApplicationName string `yaml:"applicationName"`
	QueueSize       int    `yaml:"queueSize"`
}

type WS struct {
	ReadLimit    int64  `yaml:"readLimit"`    // байт на сообщение
	SendBuffer   int    `yaml:"sendBuffer"`   // сообщений в очереди на соединение
	PingInterval string `yaml:"pingInterval"` // "0": без keepalive
	WriteTimeout string `yaml:"writeTimeout"`
}

type World struct {
	Size         float64 `yaml:"size"`
	TickInterval string  `yaml:"tickInterval"`
	NearRadius   float64 `yaml:"nearRadius"`
	NearChance   float64 `yaml:"nearChance"`
	BonusChance  float64 `yaml:"bonusChance"`
	SpawnMin     int     `yaml:"spawnMin"`
	SpawnMax     int     `yaml:"spawnMax"`
	SpawnFactor  float64 `yaml:"spawnFactor"`
}

type Extensions struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP       HTTP       `yaml:"http"`
	GRPC       GRPC       `yaml:"grpc"`
	Logging    Logging    `yaml:"logging"`
	Postgres   Postgres   `yaml:"postgres"`
	WS         WS         `yaml:"ws"`
	World      World      `yaml:"world"`
	Extensions Extensions `yaml:"extensions"`
	CORS       CORS       `yaml:"cors"`
}

// LoadConfig читает YAML из CONFIG_PATH (по умолчанию ./config/config.yaml).
// Файла может не быть, тогда работают дефолты. PORT перекрывает http.addr.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", port)
		}
		cfg.HTTP.Addr = ":" + strconv.Itoa(n)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":" + strconv.Itoa(DefaultPort)
	}
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return fmt.Errorf("http.addr: %w", err)
	}
	if c.GRPC.Addr != "" {
		if _, _, err := net.SplitHostPort(c.GRPC.Addr); err != nil {
			return fmt.Errorf("grpc.addr: %w", err)
		}
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "coop-relay"
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

	if c.Postgres.QueueSize <= 0 {
		c.Postgres.QueueSize = 1024
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}

	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 2_000_000
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}

	def := service.DefaultWorldConfig()
	if c.World.Size <= 0 {
		c.World.Size = def.Size
	}
	if c.World.NearRadius <= 0 {
		c.World.NearRadius = def.NearRadius
	}
	if c.World.NearChance <= 0 {
		c.World.NearChance = def.NearChance
	}
	if c.World.BonusChance <= 0 {
		c.World.BonusChance = def.BonusChance
	}
	if c.World.SpawnMin <= 0 {
		c.World.SpawnMin = def.SpawnMin
	}
	if c.World.SpawnMax <= 0 {
		c.World.SpawnMax = def.SpawnMax
	}
	if c.World.SpawnFactor <= 0 {
		c.World.SpawnFactor = def.SpawnFactor
	}
	if c.World.NearChance > 1 || c.World.BonusChance > 1 {
		return errors.New("world.nearChance and world.bonusChance must be within (0, 1]")
	}
	if c.World.SpawnMin > c.World.SpawnMax {
		return errors.New("world.spawnMin must not exceed world.spawnMax")
	}

	if c.Extensions.Dir == "" {
		c.Extensions.Dir = "./extensions"
	}
	return nil
}

// WorldConfig собирает параметры генерации для service.World.
func (c *Config) WorldConfig() service.WorldConfig {
	def := service.DefaultWorldConfig()
	return service.WorldConfig{
		Size:         c.World.Size,
		TickInterval: parseDurationOr(def.TickInterval, c.World.TickInterval),
		NearRadius:   c.World.NearRadius,
		NearChance:   c.World.NearChance,
		BonusChance:  c.World.BonusChance,
		SpawnMin:     c.World.SpawnMin,
		SpawnMax:     c.World.SpawnMax,
		SpawnFactor:  c.World.SpawnFactor,
	}
}

// PingInterval: 0 означает keepalive выключен.
func (c *Config) PingInterval() time.Duration {
	return parseDurationOr(0, c.WS.PingInterval)
}

func (c *Config) WriteTimeout() time.Duration {
	return parseDurationOr(5*time.Second, c.WS.WriteTimeout)
}

// Port returns the numeric listen port of http.addr.
func (c *Config) Port() string {
	_, port, _ := net.SplitHostPort(c.HTTP.Addr)
	return port
}

// helper для парсинга интервалов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
