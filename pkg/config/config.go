package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
		PublicURL  string `mapstructure:"PUBLIC_URL"`
	} `mapstructure:"MINIO"`

	ContentGen struct {
		BaseURL string        `mapstructure:"BASE_URL"`
		APIKey  string        `mapstructure:"API_KEY"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"CONTENT_GEN"`

	Synthesis struct {
		BaseURL        string        `mapstructure:"BASE_URL"`
		APIKey         string        `mapstructure:"API_KEY"`
		PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
		MaxWait        time.Duration `mapstructure:"MAX_WAIT"`
		PlaceholderURL string        `mapstructure:"PLACEHOLDER_URL"`
	} `mapstructure:"SYNTHESIS"`

	Engine struct {
		BatchSize       int           `mapstructure:"BATCH_SIZE"`
		InterBatchDelay time.Duration `mapstructure:"INTER_BATCH_DELAY"`
		RetryDelay      time.Duration `mapstructure:"RETRY_DELAY"`
		LeaseTimeout    time.Duration `mapstructure:"LEASE_TIMEOUT"`
		SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
	} `mapstructure:"ENGINE"`

	RateLimit struct {
		Window   time.Duration  `mapstructure:"WINDOW"`
		Limits   map[string]int `mapstructure:"LIMITS"`
		Fallback int            `mapstructure:"FALLBACK"`
	} `mapstructure:"RATE_LIMIT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

// applyDefaults fills engine tuning values the config file may omit. The batch
// size and pacing delays mirror the burst limits of the upstream providers.
func applyDefaults(cfg *Config) {
	if cfg.Engine.BatchSize <= 0 {
		cfg.Engine.BatchSize = 5
	}
	if cfg.Engine.InterBatchDelay <= 0 {
		cfg.Engine.InterBatchDelay = 2 * time.Second
	}
	if cfg.Engine.RetryDelay <= 0 {
		cfg.Engine.RetryDelay = time.Second
	}
	if cfg.Engine.LeaseTimeout <= 0 {
		cfg.Engine.LeaseTimeout = 30 * time.Minute
	}
	if cfg.Engine.SweepInterval <= 0 {
		cfg.Engine.SweepInterval = 5 * time.Minute
	}
	if cfg.Synthesis.PollInterval <= 0 {
		cfg.Synthesis.PollInterval = 5 * time.Second
	}
	if cfg.Synthesis.MaxWait <= 0 {
		cfg.Synthesis.MaxWait = 10 * time.Minute
	}
	if cfg.ContentGen.Timeout <= 0 {
		cfg.ContentGen.Timeout = 30 * time.Second
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.Fallback <= 0 {
		cfg.RateLimit.Fallback = 60
	}
}
