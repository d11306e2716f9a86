package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/domain"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const validYAML = `
logging:
  level: debug
  format: json
instruments:
  - symbol: BTC-USD
    base: BTC
    quote: USD
    tick_size: "0.01"
    lot_size: "0.001"
credits:
  - instrument: BTC-USD
    account: alice
    asset: USD
    amount: 1000
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, []domain.InstrumentSpec{
		{Symbol: "BTC-USD", Base: "BTC", Quote: "USD"},
	}, cfg.Specs())
	require.Len(t, cfg.Credits, 1)
	assert.Equal(t, int64(1000), cfg.Credits[0].Amount)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no instruments", "instruments: []\n"},
		{"missing assets", `
instruments:
  - symbol: BTC-USD
`},
		{"duplicate symbol", `
instruments:
  - symbol: BTC-USD
    base: BTC
    quote: USD
  - symbol: BTC-USD
    base: BTC
    quote: USD
`},
		{"bad tick size", `
instruments:
  - symbol: BTC-USD
    base: BTC
    quote: USD
    tick_size: "-1"
`},
		{"credit for unknown instrument", `
instruments:
  - symbol: BTC-USD
    base: BTC
    quote: USD
credits:
  - instrument: ETH-USD
    account: alice
    asset: USD
    amount: 10
`},
		{"non-positive credit", `
instruments:
  - symbol: BTC-USD
    base: BTC
    quote: USD
credits:
  - instrument: BTC-USD
    account: alice
    asset: USD
    amount: 0
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestTickAndLotConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	ic, ok := cfg.Instrument("BTC-USD")
	require.True(t, ok)

	// 1. Exact multiples convert both ways.
	ticks, err := ic.PriceToTicks(decimal.RequireFromString("100.25"))
	require.NoError(t, err)
	assert.Equal(t, domain.Price(10025), ticks)
	assert.True(t, decimal.RequireFromString("100.25").Equal(ic.TicksToPrice(ticks)))

	lots, err := ic.QtyToLots(decimal.RequireFromString("0.005"))
	require.NoError(t, err)
	assert.Equal(t, domain.Qty(5), lots)
	assert.True(t, decimal.RequireFromString("0.005").Equal(ic.LotsToQty(lots)))

	// 2. Off-grid values are refused.
	_, err = ic.PriceToTicks(decimal.RequireFromString("100.005"))
	assert.Error(t, err)
	_, err = ic.QtyToLots(decimal.RequireFromString("0.0005"))
	assert.Error(t, err)
}

func TestDefaultTickAndLotSizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
instruments:
  - symbol: ACME-USD
    base: ACME
    quote: USD
`))
	require.NoError(t, err)
	ic, ok := cfg.Instrument("ACME-USD")
	require.True(t, ok)

	// Unset sizes default to 1: prices are whole quote units.
	ticks, err := ic.PriceToTicks(decimal.NewFromInt(42))
	require.NoError(t, err)
	assert.Equal(t, domain.Price(42), ticks)
}
