// Package config carga la configuración de AgriQNet desde YAML con
// sobreescrituras por variables de entorno.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath es el fichero que se busca si no se indica --config.
const DefaultPath = "agriqnet.yaml"

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Region        RegionConfig        `yaml:"region"`
	Store         StoreConfig         `yaml:"store"`
	SMS           SMSConfig           `yaml:"sms"`
	Broadcast     BroadcastConfig     `yaml:"broadcast"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	NATS          NATSConfig          `yaml:"nats"`
	Auth          AuthConfig          `yaml:"auth"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// HistoryLimit acota los broadcasts recientes que se guardan en memoria.
	HistoryLimit int `yaml:"history_limit"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// RegionConfig permite sustituir la tabla de adyacencia embebida.
type RegionConfig struct {
	TablePath string `yaml:"table_path"`
}

type StoreConfig struct {
	Kind        string `yaml:"kind"` // sqlite, postgres, redis, memory
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

type SMSConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	Timeout    string `yaml:"timeout"`
}

type BroadcastConfig struct {
	TierConcurrency int `yaml:"tier_concurrency"`
}

type ProcessingConfig struct {
	Workers       int  `yaml:"workers"`
	QueueSize     int  `yaml:"queue_size"`
	AutoBroadcast bool `yaml:"auto_broadcast"`
}

type SubscriptionsConfig struct {
	OTPTTL string `yaml:"otp_ttl"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DefaultConfig devuelve una configuración funcional sin dependencias externas:
// SQLite local y canal SMS simulado.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: "10s",
			HistoryLimit:    100,
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Kind:       "sqlite",
			SQLitePath: "agriqnet.db",
		},
		SMS:           SMSConfig{Timeout: "10s"},
		Broadcast:     BroadcastConfig{TierConcurrency: 1},
		Processing:    ProcessingConfig{Workers: 3, QueueSize: 64, AutoBroadcast: true},
		Subscriptions: SubscriptionsConfig{OTPTTL: "10m"},
		Gemini:        GeminiConfig{Model: "gemini-2.5-flash"},
		NATS:          NATSConfig{Subject: "agriqnet.pest.broadcast"},
	}
}

// Load lee path; si no existe devuelve los valores por defecto. En ambos casos
// se aplican las variables de entorno.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AGRIQNET_STORE"); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.SMS.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.SMS.AuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		c.SMS.FromNumber = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate comprueba la coherencia de la configuración ya cargada.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port fuera de rango: %d", c.Server.Port))
	}
	switch strings.ToLower(c.Store.Kind) {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn requerido (o DATABASE_URL)"))
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr requerido (o REDIS_ADDR)"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind inválido: %q (sqlite, postgres, redis, memory)", c.Store.Kind))
	}
	if c.SMSConfigured() && c.SMS.FromNumber == "" {
		errs = append(errs, errors.New("sms.from_number requerido con credenciales Twilio"))
	}
	if c.Broadcast.TierConcurrency < 1 {
		errs = append(errs, errors.New("broadcast.tier_concurrency debe ser >= 1"))
	}
	if c.Processing.Workers < 1 {
		errs = append(errs, errors.New("processing.workers debe ser >= 1"))
	}
	for name, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"sms.timeout":             c.SMS.Timeout,
		"subscriptions.otp_ttl":   c.Subscriptions.OTPTTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StoreDSN devuelve la cadena de conexión del backend elegido.
func (c *Config) StoreDSN() string {
	switch strings.ToLower(c.Store.Kind) {
	case "postgres":
		return c.Store.PostgresDSN
	case "redis":
		return c.Store.RedisAddr
	case "memory":
		return ""
	default:
		return c.Store.SQLitePath
	}
}

// SMSConfigured indica si hay credenciales del proveedor; sin ellas se usa el
// canal simulado.
func (c *Config) SMSConfigured() bool {
	return c.SMS.AccountSID != "" && c.SMS.AuthToken != ""
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

func (c *Config) GetSMSTimeout() time.Duration {
	return duration(c.SMS.Timeout, 10*time.Second)
}

func (c *Config) GetOTPTTL() time.Duration {
	return duration(c.Subscriptions.OTPTTL, 10*time.Minute)
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
