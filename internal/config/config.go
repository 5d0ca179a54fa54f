// Package config предоставляет структуры и функции для загрузки конфига приложения.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	API                     `yaml:"api"`
	RedisConnection         `yaml:"redis_connection"`
	Sync                    `yaml:"sync"`
	Metrics                 `yaml:"metrics"`
}

// API структура для настройки клиента REST API путеводителя
type API struct {
	BaseURL           string        `yaml:"base_url" env:"API_BASE_URL" env-required:"true"`
	CurrencyURL       string        `yaml:"currency_url" env:"API_CURRENCY_URL"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst" env-default:"1"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес означает, что сессия хранится в памяти процесса.
type RedisConnection struct {
	AddressRedis string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeout"`
}

// Sync структура для настройки фоновой синхронизации
type Sync struct {
	Interval        time.Duration `yaml:"interval" env-default:"15m"`
	DefaultLanguage string        `yaml:"default_language" env-default:"en"`
}

// Metrics структура для настройки эндпоинта метрик (пустой адрес — эндпоинт выключен)
type Metrics struct {
	AddressMetrics string `yaml:"address"`
}

// Load читает конфиг из файла и переменных окружения.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH, и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) String() string {
	password := ""
	if c.Password != "" {
		password = "***"
	}
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString set: %t\n"+
			"API:\n"+
			"  BaseURL: %s\n"+
			"  CurrencyURL: %s\n"+
			"  Timeout: %s\n"+
			"  RequestsPerSecond: %g\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"Sync:\n"+
			"  Interval: %s\n"+
			"  DefaultLanguage: %s\n"+
			"Metrics:\n"+
			"  Address: %s\n",
		c.Env,
		c.StorageConnectionString != "",
		c.BaseURL,
		c.CurrencyURL,
		c.Timeout,
		c.RequestsPerSecond,
		c.AddressRedis,
		password,
		c.DB,
		c.Interval,
		c.DefaultLanguage,
		c.AddressMetrics,
	)
}
