package app

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the authcore service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Email     EmailConfig     `mapstructure:"email"`
	Mail      MailConfig      `mapstructure:"mail"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// AppConfig holds public facing settings.
type AppConfig struct {
	// URL is the externally reachable API base, including any route prefix.
	URL string `mapstructure:"url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Issuer       string               `mapstructure:"issuer"`
	AccessToken  TokenSettings        `mapstructure:"access_token"`
	RefreshToken TokenSettings        `mapstructure:"refresh_token"`
	Password     PasswordSettings     `mapstructure:"password"`
	Verification VerificationSettings `mapstructure:"verification"`
}

// TokenSettings configures a signed token kind.
type TokenSettings struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// PasswordSettings configures password hashing.
type PasswordSettings struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// VerificationSettings configures email verification tokens.
type VerificationSettings struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Length int           `mapstructure:"length"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MailConfig configures the mail dispatch pipeline.
type MailConfig struct {
	Queue MailQueueConfig `mapstructure:"queue"`
}

// MailQueueConfig tunes the durable mail queue and its workers.
type MailQueueConfig struct {
	Workers       int           `mapstructure:"workers"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Lease         time.Duration `mapstructure:"lease"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	DeadRetention time.Duration `mapstructure:"dead_retention"`
}

// EventsConfig configures the in-process event bus.
type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// RateLimitConfig configures the request rate limiter.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// legacyEnv maps config keys to the plain environment variable names older deployments use.
var legacyEnv = map[string]string{
	"server.port":               "PORT",
	"app.url":                   "APP_URL",
	"auth.access_token.secret":  "ACCESS_TOKEN_SECRET",
	"auth.access_token.ttl":     "ACCESS_TOKEN_EXPIRATION",
	"auth.refresh_token.secret": "REFRESH_TOKEN_SECRET",
	"auth.refresh_token.ttl":    "REFRESH_TOKEN_EXPIRATION",
	"email.smtp.host":           "MAIL_HOST",
	"email.smtp.port":           "MAIL_PORT",
	"email.smtp.username":       "MAIL_USERNAME",
	"email.smtp.password":       "MAIL_PASSWORD",
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// Each path is either a directory searched for config.yaml or a YAML file read as is.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			v.SetConfigFile(path)
			continue
		}
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "AUTHCORE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("app.url", "http://localhost:8000/api")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authcore.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.issuer", "authcore")
	v.SetDefault("auth.access_token.ttl", "15m")
	v.SetDefault("auth.refresh_token.ttl", "7d")
	v.SetDefault("auth.password.bcrypt_cost", 10)
	v.SetDefault("auth.verification.ttl", "168h")
	v.SetDefault("auth.verification.length", 48)

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.from", "no-reply@localhost")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("mail.queue.workers", 2)
	v.SetDefault("mail.queue.poll_interval", "1s")
	v.SetDefault("mail.queue.lease", "2m")
	v.SetDefault("mail.queue.max_attempts", 5)
	v.SetDefault("mail.queue.base_delay", "30s")
	v.SetDefault("mail.queue.max_delay", "1h")
	v.SetDefault("mail.queue.dead_retention", "7d")

	v.SetDefault("events.buffer", 256)

	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDurationWithDaysHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var dayComponent = regexp.MustCompile(`^(\d+)d(.*)$`)

// ParseDuration parses Go durations with an optional leading whole-day component ("7d", "1d12h").
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	match := dayComponent.FindStringSubmatch(value)
	if match == nil {
		return time.ParseDuration(value)
	}

	days, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	total := time.Duration(days) * 24 * time.Hour

	if rest := match[2]; rest != "" {
		extra, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		total += extra
	}
	return total, nil
}

func stringToDurationWithDaysHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}
