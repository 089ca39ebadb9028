package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string        `envconfig:"ENVIRONMENT" default:"development"`
	GinMode     string        `envconfig:"GIN_MODE"`
	ServerPort  string        `envconfig:"SERVER_PORT" default:"8080"`
	AppBaseURL  string        `envconfig:"APP_BASE_URL"`
	CORSOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	JWTExpire   time.Duration `envconfig:"JWT_EXPIRE" default:"24h"`
	StatsTTL    time.Duration `envconfig:"STATS_CACHE_TTL" default:"1m"`

	DB    Database `envconfig:"DB"`
	SMTP  SMTP     `envconfig:"SMTP"`
	Redis Redis    `envconfig:"REDIS"`
	Log   Log      `envconfig:"LOG"`
}

type Database struct {
	Host        string `envconfig:"HOST" default:"127.0.0.1"`
	Port        string `envconfig:"PORT" default:"3306"`
	Database    string `envconfig:"DATABASE"`
	Username    string `envconfig:"USERNAME"`
	Password    string `envconfig:"PASSWORD"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`
	DebugSQL    bool   `envconfig:"DEBUG_SQL"`
}

type SMTP struct {
	Host          string `envconfig:"HOST"`
	Port          int    `envconfig:"PORT" default:"587"`
	User          string `envconfig:"USER"`
	Pass          string `envconfig:"PASS"`
	From          string `envconfig:"FROM"` // e.g. "Grant Portal <no-reply@your.org>"
	SkipTLSVerify bool   `envconfig:"SKIP_TLS_VERIFY"`
}

type Redis struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB"`
}

type Log struct {
	File       string `envconfig:"FILE" default:"logs/grant-api.log"`
	MaxSize    int    `envconfig:"MAX_SIZE" default:"50"` // megabytes
	MaxBackups int    `envconfig:"MAX_BACKUPS" default:"5"`
	MaxAge     int    `envconfig:"MAX_AGE" default:"30"` // days
	Compress   bool   `envconfig:"COMPRESS"`
}

// Load reads the configuration from the process environment. Call
// godotenv.Load first if a .env file should be honoured.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
