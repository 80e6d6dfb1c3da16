// Package ops loads the runtime configuration of the execution daemon.
package ops

import (
	"os"
	"strconv"
	"strings"
	"time"

	"execcore/pkg/exception"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Connection ConnectionConfig `yaml:"connection"`
	Order      OrderConfig      `yaml:"order"`
	Margin     MarginConfig     `yaml:"margin"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Profiling  ProfilingConfig  `yaml:"profiling"`
}

// BrokerConfig selects the brokerage. Only "paper" is built in.
type BrokerConfig struct {
	Kind          string `yaml:"kind"`
	QuoteCurrency string `yaml:"quote_currency"`
}

// ConnectionConfig describes the streaming session.
type ConnectionConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
	Subaccount     string        `yaml:"subaccount"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// ExponentialBackoff replaces the fixed reconnect delay with a jittered
	// exponential one.
	ExponentialBackoff bool           `yaml:"exponential_backoff"`
	Subscriptions      []Subscription `yaml:"subscriptions"`
}

type Subscription struct {
	Channel string `yaml:"channel"`
	Market  string `yaml:"market"`
}

// OrderConfig drives the order managers and the manage loop.
type OrderConfig struct {
	Symbols        []string      `yaml:"symbols"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	ManageInterval time.Duration `yaml:"manage_interval"`
	QueueSize      int           `yaml:"queue_size"`
	SnapshotPath   string        `yaml:"snapshot_path"`
}

// MarginConfig selects the margin variant and where collateral parameters
// come from. ParametersCSV wins over Database when both are set.
type MarginConfig struct {
	SpotMarginEnabled bool           `yaml:"spot_margin_enabled"`
	RiskMultiplier    string         `yaml:"risk_multiplier"`
	ParametersCSV     string         `yaml:"parameters_csv"`
	Database          DatabaseConfig `yaml:"database"`
}

// DatabaseConfig is empty when Driver is empty.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
	Application   string `yaml:"application"`
}

// Default returns a paper-trading configuration.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Kind:          "paper",
			QuoteCurrency: "USD",
		},
		Connection: ConnectionConfig{
			PingInterval:   15 * time.Second,
			SilenceTimeout: 30 * time.Second,
			ReconnectDelay: time.Second,
		},
		Order: OrderConfig{
			StaleAfter:     5 * time.Second,
			ManageInterval: time.Second,
			QueueSize:      4096,
		},
		Margin: MarginConfig{
			RiskMultiplier: "1",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Profiling: ProfilingConfig{
			ServerAddress: "http://localhost:4040",
			Application:   "execcore",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file. The env file, when
// non-empty, is loaded into the environment first; a missing env file is not
// an error.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config").With("path", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config").With("path", path)
		}
	}

	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EXEC_API_KEY"); v != "" {
		cfg.Connection.APIKey = v
	}
	if v := os.Getenv("EXEC_API_SECRET"); v != "" {
		cfg.Connection.APISecret = v
	}
	if v := os.Getenv("EXEC_SUBACCOUNT"); v != "" {
		cfg.Connection.Subaccount = v
	}
	if v := os.Getenv("EXEC_WS_URL"); v != "" {
		cfg.Connection.URL = v
	}
	if v := os.Getenv("EXEC_SYMBOLS"); v != "" {
		cfg.Order.Symbols = splitList(v)
	}
	if v := os.Getenv("EXEC_STALE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parse EXEC_STALE_AFTER")
		}
		cfg.Order.StaleAfter = d
	}
	if v := os.Getenv("EXEC_SPOT_MARGIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "parse EXEC_SPOT_MARGIN")
		}
		cfg.Margin.SpotMarginEnabled = b
	}
	if v := os.Getenv("EXEC_DB_DSN"); v != "" {
		cfg.Margin.Database.DSN = v
	}
	if v := os.Getenv("EXEC_DB_PASSWORD"); v != "" {
		cfg.Margin.Database.Password = v
	}
	if v := os.Getenv("EXEC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return nil
}

// Validate checks the fields the daemon cannot default.
func (c Config) Validate() error {
	if c.Broker.Kind != "paper" {
		return errors.Wrap(exception.ErrInvalidArgument, "unsupported broker kind").With("kind", c.Broker.Kind)
	}
	if c.Broker.QuoteCurrency == "" {
		return errors.New("quote currency is empty")
	}
	if c.Order.StaleAfter <= 0 {
		return errors.New("order stale_after must be > 0")
	}
	if c.Order.ManageInterval <= 0 {
		return errors.New("order manage_interval must be > 0")
	}
	if _, err := c.Margin.Multiplier(); err != nil {
		return err
	}
	switch c.Margin.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "unsupported database driver").With("driver", c.Margin.Database.Driver)
	}
	return nil
}

// Multiplier parses RiskMultiplier, which must lie in (0, 1].
func (m MarginConfig) Multiplier() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(m.RiskMultiplier)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse risk_multiplier")
	}
	if !v.IsPositive() || v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Wrap(exception.ErrInvalidArgument, "risk_multiplier must be in (0, 1]").With("value", m.RiskMultiplier)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
