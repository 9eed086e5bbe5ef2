/**
 * @description
 * This package handles the configuration management for the billing-service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional local .env file), providing a centralized way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 *
 * @notes
 * - STRIPE_WEBHOOK_SECRET is deliberately allowed to be empty at load time:
 *   the webhook endpoint fails closed with a server error instead of ever
 *   skipping signature verification.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	Currency            string `mapstructure:"BILLING_CURRENCY"`

	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	AnalyticsCacheTTLSeconds  int `mapstructure:"ANALYTICS_CACHE_TTL_SECONDS"`
	AnalyticsCacheMaxEntries  int `mapstructure:"ANALYTICS_CACHE_MAX_ENTRIES"`
	PaymentRateLimitPerMinute int `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("BILLING_CURRENCY", "usd")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "billing:rate_limit")
	viper.SetDefault("ANALYTICS_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("ANALYTICS_CACHE_MAX_ENTRIES", 1024)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 20)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("BILLING_CURRENCY")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("ANALYTICS_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("ANALYTICS_CACHE_MAX_ENTRIES")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.StripeWebhookSecret = strings.TrimSpace(config.StripeWebhookSecret)
	config.Currency = strings.ToLower(strings.TrimSpace(config.Currency))
	if config.Currency == "" {
		config.Currency = "usd"
	}

	if config.AnalyticsCacheTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive analytics cache ttl; using default\" ttl_seconds=%d", config.AnalyticsCacheTTLSeconds)
		config.AnalyticsCacheTTLSeconds = 300
	}
	if config.AnalyticsCacheMaxEntries <= 0 {
		config.AnalyticsCacheMaxEntries = 1024
	}
	if config.PaymentRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative payment rate limit; disabling\" per_minute=%d", config.PaymentRateLimitPerMinute)
		config.PaymentRateLimitPerMinute = 0
	}

	return
}
