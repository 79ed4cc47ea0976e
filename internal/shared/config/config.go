package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	localTokenServerURL      = "http://localhost:8080/"
	productionTokenServerURL = "https://api.balancemy.money/"
)

type Config struct {
	Debug      bool             `env:"APP_DEBUG"`
	Server     ServerConfig     `env:",prefix=SERVER_"`
	Database   DatabaseConfig   `env:",prefix=DB_"`
	Redis      RedisConfig      `env:",prefix=REDIS_"`
	Encryption EncryptionConfig `env:",prefix=ENCRYPTION_"`
	Coinbase   CoinbaseConfig   `env:",prefix=COINBASE_"`
	Poloniex   PoloniexConfig   `env:",prefix=POLONIEX_"`
	Scheduler  SchedulerConfig  `env:",prefix=SCHEDULER_"`
	Telemetry  TelemetryConfig  `env:",prefix=OTEL_"`
}

type ServerConfig struct {
	Port string `env:"PORT, default=8080"`
	Host string `env:"HOST, default=0.0.0.0"`
	// AllowedHosts limits CORS origins. Empty allows any origin.
	AllowedHosts  []string `env:"ALLOWED_HOSTS"`
	SecureCookies bool     `env:"SECURE_COOKIES, default=false"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST, default=localhost"`
	Port     int    `env:"PORT, default=5432"`
	User     string `env:"USER, default=balance"`
	Password string `env:"PASSWORD"`
	DBName   string `env:"NAME, default=balance"`
	SSLMode  string `env:"SSLMODE, default=disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB, default=0"`
}

type EncryptionConfig struct {
	Key string `env:"KEY"`
}

type CoinbaseConfig struct {
	ClientID    string `env:"CLIENT_ID, default=a6e15fbb0c3362b74360895f261fb079672c10eef79dcb72308c974408c5ce43"`
	RedirectURI string `env:"REDIRECT_URI, default=balancemymoney://coinbase"`
	// LocalTokenServer selects the locally running token broker instead of production.
	LocalTokenServer bool `env:"LOCAL_TOKEN_SERVER, default=false"`
	// TokenServerURL overrides both defaults when set.
	TokenServerURL string `env:"TOKEN_SERVER_URL"`
	APIBaseURL     string `env:"API_BASE_URL, default=https://api.coinbase.com"`
}

// TokenServer returns the base URL of the server that brokers Coinbase tokens.
// It always ends with a slash.
func (c CoinbaseConfig) TokenServer() string {
	if c.TokenServerURL != "" {
		if c.TokenServerURL[len(c.TokenServerURL)-1] != '/' {
			return c.TokenServerURL + "/"
		}
		return c.TokenServerURL
	}
	if c.LocalTokenServer {
		return localTokenServerURL
	}
	return productionTokenServerURL
}

type PoloniexConfig struct {
	TradingAPIURL string `env:"TRADING_API_URL, default=https://poloniex.com/tradingApi"`
}

type SchedulerConfig struct {
	Enabled       bool          `env:"ENABLED, default=true"`
	ScheduleTimes []string      `env:"TIMES, default=05:00,10:00,14:00,20:00"`
	WorkerCount   int           `env:"WORKERS, default=2"`
	JobDelay      time.Duration `env:"JOB_DELAY, default=1s"`
	JobTimeout    time.Duration `env:"JOB_TIMEOUT, default=2m"`
	QueueSize     int           `env:"QUEUE_SIZE, default=16"`
	RunOnStartup  bool          `env:"RUN_ON_STARTUP, default=false"`
}

type TelemetryConfig struct {
	Enabled      bool   `env:"ENABLED, default=false"`
	ServiceName  string `env:"SERVICE_NAME, default=balance-api"`
	Environment  string `env:"ENVIRONMENT, default=development"`
	OTLPEndpoint string `env:"EXPORTER_ENDPOINT, default=localhost:4317"`
	MetricsPort  string `env:"METRICS_PORT, default=9464"`
	// SampleRatio is the fraction of traces kept.
	SampleRatio float64 `env:"TRACES_SAMPLER_ARG, default=1"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, cfg, lookuper); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.WorkerCount <= 0 {
		return nil, fmt.Errorf("SCHEDULER_WORKERS must be positive, got %d", cfg.Scheduler.WorkerCount)
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
