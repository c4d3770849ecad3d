package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port     string `mapstructure:"port"`
		Env      string `mapstructure:"env"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"app"`
	Database struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int32  `mapstructure:"max_conns"`
		Migrate  bool   `mapstructure:"migrate"` // Применять миграции при старте
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey        string       `mapstructure:"api_key"`
		WebhookSecret string       `mapstructure:"webhook_secret"`
		Prices        StripePrices `mapstructure:"prices"`
	} `mapstructure:"stripe"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"` // HS256 секрет провайдера
		JWKSURL   string `mapstructure:"jwks_url"`   // Если задан, проверка идет по JWKS
		Issuer    string `mapstructure:"issuer"`
		Audience  string `mapstructure:"audience"`
	} `mapstructure:"auth"`
	CGM struct {
		BaseURL      string        `mapstructure:"base_url"`
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		RedirectURL  string        `mapstructure:"redirect_url"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"cgm"`
	GRPC struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"grpc"`
	Trial struct {
		SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 - очистка только по внешнему триггеру
	} `mapstructure:"trial"`
}

// StripePrices - идентификаторы цен Stripe для планов каталога.
type StripePrices struct {
	BetaMonthly    string `mapstructure:"beta_monthly"`
	BetaYearly     string `mapstructure:"beta_yearly"`
	RegularMonthly string `mapstructure:"regular_monthly"`
	RegularYearly  string `mapstructure:"regular_yearly"`
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

var defaults = map[string]any{
	"app.port":                      "3000",
	"app.env":                       EnvDevelopment,
	"app.log_level":                 "info",
	"database.dsn":                  "",
	"database.max_conns":            10,
	"database.migrate":              true,
	"redis.addr":                    "",
	"redis.password":                "",
	"redis.db":                      0,
	"kafka.brokers":                 []string{},
	"stripe.api_key":                "",
	"stripe.webhook_secret":         "",
	"stripe.prices.beta_monthly":    "price_beta_monthly",
	"stripe.prices.beta_yearly":     "price_beta_yearly",
	"stripe.prices.regular_monthly": "price_regular_monthly",
	"stripe.prices.regular_yearly":  "price_regular_yearly",
	"auth.jwt_secret":               "",
	"auth.jwks_url":                 "",
	"auth.issuer":                   "",
	"auth.audience":                 "",
	"cgm.base_url":                  "https://sandbox-api.dexcom.com",
	"cgm.client_id":                 "",
	"cgm.client_secret":             "",
	"cgm.redirect_url":              "",
	"cgm.timeout":                   15 * time.Second,
	"grpc.port":                     "",
	"trial.sweep_interval":          time.Duration(0),
}

// LoadConfig загружает конфигурацию: .env (если есть), config.yml (если есть),
// затем переменные окружения. Ключ stripe.api_key читается из STRIPE_API_KEY.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

// Validate проверяет настройки, без которых сервис не должен стартовать.
func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("app.port is required")
	}
	if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" {
		return errors.New("auth is not configured: set AUTH_JWKS_URL or AUTH_JWT_SECRET")
	}
	return nil
}

// IsDevelopment - в development клиенту отдается отладочная информация об ошибках.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}
