package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	BadgerDBPath string `mapstructure:"BADGERDB_PATH" validate:"required"`
	HTTPAddr     string `mapstructure:"HTTP_ADDR" validate:"required"`
	// BaseURL prefixes short codes in bot and CLI output.
	BaseURL string `mapstructure:"BASE_URL" validate:"required,url"`

	// TelegramBotToken enables the Telegram front end when set.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=json text"`
	LogFile   string `mapstructure:"LOG_FILE"`

	DefaultValidityMinutes int `mapstructure:"DEFAULT_VALIDITY_MINUTES" validate:"gt=0"`
	CodeLength             int `mapstructure:"CODE_LENGTH" validate:"gte=4,lte=32"`
	CodeMaxAttempts        int `mapstructure:"CODE_MAX_ATTEMPTS" validate:"gt=0"`

	GCInterval time.Duration `mapstructure:"GC_INTERVAL" validate:"gt=0"`

	PreviewEnabled bool          `mapstructure:"PREVIEW_ENABLED"`
	PreviewTimeout time.Duration `mapstructure:"PREVIEW_TIMEOUT" validate:"gt=0"`
}

var defaults = map[string]interface{}{
	"BADGERDB_PATH":            "./badger_data",
	"HTTP_ADDR":                ":8080",
	"BASE_URL":                 "http://localhost:8080",
	"TELEGRAM_BOT_TOKEN":       "",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
	"LOG_FILE":                 "",
	"DEFAULT_VALIDITY_MINUTES": 30,
	"CODE_LENGTH":              6,
	"CODE_MAX_ATTEMPTS":        10,
	"GC_INTERVAL":              "5m",
	"PREVIEW_ENABLED":          false,
	"PREVIEW_TIMEOUT":          "20s",
}

// LoadConfig reads configuration from a .env file, a config.yaml under path
// and environment variables, in increasing order of precedence.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	err = v.ReadInConfig()
	if err != nil {
		// Config file not found; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return config, nil
}

// ShortURL renders code under the configured base URL.
func (c Config) ShortURL(code string) string {
	return c.BaseURL + "/" + code
}
