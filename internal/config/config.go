package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env            string        `json:"env" yaml:"env"`
	Port           int           `json:"port" yaml:"port"`
	LogJSON        bool          `json:"logJson" yaml:"log_json"`
	LogLevel       string        `json:"logLevel" yaml:"log_level"`
	StoreDriver    string        `json:"storeDriver" yaml:"store_driver"`
	DatabaseURL    string        `json:"-" yaml:"database_url"`
	AMQPURL        string        `json:"-" yaml:"amqp_url"`
	AMQPExchange   string        `json:"amqpExchange" yaml:"amqp_exchange"`
	JWTSecret      string        `json:"-" yaml:"jwt_secret"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"request_timeout"`
	CORSOrigins    []string      `json:"corsOrigins" yaml:"cors_origins"`
}

func Default() Config {
	return Config{
		Env:            "dev",
		Port:           5000,
		LogJSON:        true,
		LogLevel:       "info",
		StoreDriver:    "memory",
		AMQPExchange:   "notifications",
		RequestTimeout: 10 * time.Second,
		CORSOrigins:    []string{"*"},
	}
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

// Load reads and validates the configuration.
func Load(path string) (Config, error) {
	c, err := Read(path)
	if err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Read layers defaults, an optional YAML file and DISPATCH_* variables, in
// that order, without validating the result.
func Read(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return fromEnv(c), nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535]: %d", c.Port)
	}
	switch c.StoreDriver {
	case "memory":
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %s needs a database url", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

func fromEnv(c Config) Config {
	if v := os.Getenv("DISPATCH_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("DISPATCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("DISPATCH_LOG_JSON"); v != "" {
		switch v {
		case "1", "true", "TRUE":
			c.LogJSON = true
		case "0", "false", "FALSE":
			c.LogJSON = false
		}
	}
	if v := os.Getenv("DISPATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DISPATCH_STORE"); v != "" {
		c.StoreDriver = v
	}
	if v := os.Getenv("DISPATCH_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DISPATCH_AMQP_URL"); v != "" {
		c.AMQPURL = v
	}
	if v := os.Getenv("DISPATCH_AMQP_EXCHANGE"); v != "" {
		c.AMQPExchange = v
	}
	if v := os.Getenv("DISPATCH_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("DISPATCH_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("DISPATCH_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	return c
}
