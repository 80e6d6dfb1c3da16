package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
broker:
  quote_currency: USDT
connection:
  url: wss://example.com/ws
  ping_interval: 10s
  exponential_backoff: true
  subscriptions:
    - channel: orders
    - channel: fills
      market: BTC-PERP
order:
  symbols: [BTC-PERP, ETH-PERP]
  stale_after: 3s
  snapshot_path: state/positions.json
margin:
  spot_margin_enabled: true
  risk_multiplier: "0.8"
  database:
    driver: sqlite
    dsn: params.db
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Broker.Kind)
	assert.Equal(t, "USDT", cfg.Broker.QuoteCurrency)
	assert.Equal(t, 10*time.Second, cfg.Connection.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.Connection.SilenceTimeout)
	assert.True(t, cfg.Connection.ExponentialBackoff)
	assert.Equal(t, []Subscription{{Channel: "orders"}, {Channel: "fills", Market: "BTC-PERP"}}, cfg.Connection.Subscriptions)
	assert.Equal(t, []string{"BTC-PERP", "ETH-PERP"}, cfg.Order.Symbols)
	assert.Equal(t, 3*time.Second, cfg.Order.StaleAfter)
	assert.Equal(t, time.Second, cfg.Order.ManageInterval)
	assert.True(t, cfg.Margin.SpotMarginEnabled)
	assert.Equal(t, "sqlite", cfg.Margin.Database.Driver)

	m, err := cfg.Margin.Multiplier()
	require.NoError(t, err)
	assert.Equal(t, "0.8", m.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXEC_SYMBOLS", "BTC-PERP, SOL-PERP,")
	t.Setenv("EXEC_STALE_AFTER", "750ms")
	t.Setenv("EXEC_SPOT_MARGIN", "true")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-PERP", "SOL-PERP"}, cfg.Order.Symbols)
	assert.Equal(t, 750*time.Millisecond, cfg.Order.StaleAfter)
	assert.True(t, cfg.Margin.SpotMarginEnabled)
}

func TestLoadEnvFile(t *testing.T) {
	t.Cleanup(func() { _ = os.Unsetenv("EXEC_SUBACCOUNT") })
	envPath := writeFile(t, ".env", "EXEC_SUBACCOUNT=alpha\n")

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Connection.Subaccount)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"broker kind":     "broker:\n  kind: live\n",
		"stale after":     "order:\n  stale_after: 0s\n",
		"risk multiplier": "margin:\n  risk_multiplier: \"1.5\"\n",
		"not a number":    "margin:\n  risk_multiplier: abc\n",
		"database driver": "margin:\n  database:\n    driver: mysql\n",
		"yaml":            "order: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", content), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestBadEnvDuration(t *testing.T) {
	t.Setenv("EXEC_STALE_AFTER", "soon")
	_, err := Load("", "")
	assert.Error(t, err)
}
