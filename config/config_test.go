package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXCHANGES", "hitbtc")
	t.Setenv("HITBTC_API_KEY", "key")
	t.Setenv("HITBTC_API_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, "BTC", cfg.BaseCurrency)
	assert.Equal(t, 100, cfg.HistoryRetain)
	assert.Equal(t, "./data/coinwatch.db", cfg.DBPath)
	assert.Empty(t, cfg.HTTPAddr)

	require.Len(t, cfg.Exchanges, 1)
	ex := cfg.Exchanges[0]
	assert.Equal(t, "hitbtc", ex.Name)
	assert.Equal(t, 5*time.Second, ex.Timeout)
	assert.Equal(t, cfg.PollInterval, ex.PollInterval, "per-exchange interval defaults to the global period")
}

func TestLoadConfig_MultipleExchanges(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("EXCHANGES", "hitbtc, Binance")
	t.Setenv("BINANCE_API_KEY", "key2")
	t.Setenv("BINANCE_API_SECRET", "secret2")
	t.Setenv("BINANCE_POLL_SECONDS", "60")
	t.Setenv("POLL_INTERVAL_SECONDS", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Exchanges, 2)

	assert.Equal(t, "binance", cfg.Exchanges[1].Name, "names are trimmed and lower-cased")
	assert.Equal(t, 60*time.Second, cfg.Exchanges[1].PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Exchanges[0].PollInterval,
		"an interval below the global period is clamped up to it")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no exchanges",
			env:     map[string]string{"EXCHANGES": ""},
			wantErr: "EXCHANGES must list at least one exchange",
		},
		{
			name: "missing credentials",
			env: map[string]string{
				"EXCHANGES": "hitbtc",
			},
			wantErr: "HITBTC_API_KEY must be set",
		},
		{
			name: "duplicate exchange",
			env: map[string]string{
				"EXCHANGES":         "hitbtc,hitbtc",
				"HITBTC_API_KEY":    "k",
				"HITBTC_API_SECRET": "s",
			},
			wantErr: `exchange "hitbtc" configured twice`,
		},
		{
			name: "non-positive poll interval",
			env: map[string]string{
				"EXCHANGES":             "hitbtc",
				"HITBTC_API_KEY":        "k",
				"HITBTC_API_SECRET":     "s",
				"POLL_INTERVAL_SECONDS": "0",
			},
			wantErr: "POLL_INTERVAL_SECONDS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
