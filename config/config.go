package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"infra-risk-api/risk"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Store    StoreConfig    `mapstructure:"store"`
	Scorer   ScorerConfig   `mapstructure:"scorer"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
	Issuer      string `mapstructure:"issuer"`
}

type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RiskConfig tunes the scoring engine and the risk service around it.
type RiskConfig struct {
	Timezone             string   `mapstructure:"timezone"`
	BadContractors       []string `mapstructure:"-"`
	MonsoonMonths        []int    `mapstructure:"-"`
	NormalizeContractors bool     `mapstructure:"normalize_contractors"`
	CacheTTLSec          int      `mapstructure:"cache_ttl_sec"`
}

// Location resolves Timezone. The config is validated on load, so the error
// path only triggers for hand-built values.
func (r RiskConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", r.Timezone)
	}
	return loc, nil
}

func (r RiskConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}

// EngineConfig converts the settings into risk.Config.
func (r RiskConfig) EngineConfig() risk.Config {
	months := make([]time.Month, 0, len(r.MonsoonMonths))
	for _, m := range r.MonsoonMonths {
		months = append(months, time.Month(m))
	}
	return risk.Config{
		BadContractors:       append([]string(nil), r.BadContractors...),
		MonsoonMonths:        months,
		NormalizeContractors: r.NormalizeContractors,
	}
}

// StoreConfig controls retries of reads against the project/report store.
type StoreConfig struct {
	RetryAttempts int `mapstructure:"retry_attempts"`
	RetryBaseMS   int `mapstructure:"retry_base_ms"`
}

func (s StoreConfig) RetryBase() time.Duration {
	return time.Duration(s.RetryBaseMS) * time.Millisecond
}

type ScorerConfig struct {
	IntervalSec int    `mapstructure:"interval_sec"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func (s ScorerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}

type MQTTConfig struct {
	URL   string `mapstructure:"url"`
	Topic string `mapstructure:"topic"`
}

// envBindings keeps the flat environment names used across the deployment.
var envBindings = map[string]string{
	"server.port":                "SERVER_PORT",
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.name":              "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"jwt.secret":                 "JWT_SECRET",
	"jwt.expiry_hours":           "JWT_EXPIRY_HOURS",
	"jwt.issuer":                 "JWT_ISSUER",
	"cors.allowed_origins":       "CORS_ALLOWED_ORIGINS",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
	"risk.timezone":              "RISK_TIMEZONE",
	"risk.bad_contractors":       "RISK_BAD_CONTRACTORS",
	"risk.monsoon_months":        "RISK_MONSOON_MONTHS",
	"risk.normalize_contractors": "RISK_NORMALIZE_CONTRACTORS",
	"risk.cache_ttl_sec":         "RISK_CACHE_TTL_SEC",
	"store.retry_attempts":       "STORE_RETRY_ATTEMPTS",
	"store.retry_base_ms":        "STORE_RETRY_BASE_MS",
	"scorer.interval_sec":        "SCORER_INTERVAL_SEC",
	"scorer.metrics_addr":        "METRICS_ADDR",
	"mqtt.url":                   "MQTT_URL",
	"mqtt.topic":                 "MQTT_TOPIC",
}

// LoadConfig reads an optional config.yaml from the working directory and
// overlays environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", env)
		}
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "civic")
	v.SetDefault("database.password", "civic_dev_password")
	v.SetDefault("database.name", "civic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.issuer", "civic-identity")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("risk.timezone", "Asia/Kolkata")
	v.SetDefault("risk.bad_contractors", risk.DefaultBadContractors)
	v.SetDefault("risk.monsoon_months", []int{6, 7, 8, 9})
	v.SetDefault("risk.normalize_contractors", false)
	v.SetDefault("risk.cache_ttl_sec", 30)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_base_ms", 200)
	v.SetDefault("scorer.interval_sec", 300)
	v.SetDefault("scorer.metrics_addr", ":9090")
	v.SetDefault("mqtt.url", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "civic/reports/+")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// List settings come from yaml as lists and from the environment as
	// comma-separated strings.
	cfg.Risk.BadContractors = splitList(v.Get("risk.bad_contractors"))
	months, err := parseMonths(v.Get("risk.monsoon_months"))
	if err != nil {
		return nil, err
	}
	cfg.Risk.MonsoonMonths = months

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return eris.Errorf("config: invalid DB_PORT %d", c.Database.Port)
	}
	for _, m := range c.Risk.MonsoonMonths {
		if m < 1 || m > 12 {
			return eris.Errorf("config: monsoon month %d outside 1-12", m)
		}
	}
	if _, err := c.Risk.Location(); err != nil {
		return err
	}
	if c.Risk.CacheTTLSec < 0 {
		return eris.Errorf("config: negative RISK_CACHE_TTL_SEC %d", c.Risk.CacheTTLSec)
	}
	if c.Store.RetryAttempts < 1 {
		return eris.Errorf("config: STORE_RETRY_ATTEMPTS must be at least 1, got %d", c.Store.RetryAttempts)
	}
	if c.Scorer.IntervalSec <= 0 {
		return eris.Errorf("config: invalid SCORER_INTERVAL_SEC %d", c.Scorer.IntervalSec)
	}
	return nil
}

func splitList(raw interface{}) []string {
	var parts []string
	switch vv := raw.(type) {
	case string:
		parts = strings.Split(vv, ",")
	case []string:
		parts = vv
	case []interface{}:
		for _, p := range vv {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		// Names are matched exactly later; only drop the list separators' padding.
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMonths(raw interface{}) ([]int, error) {
	if ints, ok := raw.([]int); ok {
		return append([]int(nil), ints...), nil
	}
	var out []int
	for _, s := range splitList(raw) {
		m, err := strconv.Atoi(s)
		if err != nil {
			return nil, eris.Wrapf(err, "config: invalid monsoon month %q", s)
		}
		out = append(out, m)
	}
	return out, nil
}

// InitLogger installs the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
