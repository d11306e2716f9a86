// Package config loads venue configuration from a YAML file (default:
// configs/config.yaml) with fields overridable via VIDAR_* environment
// variables. Prices and quantities are decimal strings in the file and are
// converted to integer ticks/lots at this boundary; the core never sees
// fractional values.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"vidar/internal/domain"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Logging     LoggingConfig      `mapstructure:"logging"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Credits     []CreditConfig     `mapstructure:"credits"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InstrumentConfig declares one tradeable pair. TickSize is the quote value
// of one price tick, LotSize the base value of one lot; both are decimal
// strings so "0.01" survives the trip through YAML exactly.
type InstrumentConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Base     string `mapstructure:"base"`
	Quote    string `mapstructure:"quote"`
	TickSize string `mapstructure:"tick_size"`
	LotSize  string `mapstructure:"lot_size"`

	tick decimal.Decimal
	lot  decimal.Decimal
}

// CreditConfig seeds one account balance at startup. Ledgers are
// per-instrument, so each credit names the instrument whose engine holds it.
type CreditConfig struct {
	Instrument string `mapstructure:"instrument"`
	Account    string `mapstructure:"account"`
	Asset      string `mapstructure:"asset"`
	Amount     int64  `mapstructure:"amount"`
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VIDAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks coherence and parses the decimal fields. Must run before
// the conversion helpers are used.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := make(map[string]bool)
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		if inst.Symbol == "" || inst.Base == "" || inst.Quote == "" {
			return fmt.Errorf("instrument %d: symbol, base and quote are required", i)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("duplicate instrument %s", inst.Symbol)
		}
		seen[inst.Symbol] = true

		var err error
		if inst.tick, err = parsePositiveDecimal(inst.TickSize, "1"); err != nil {
			return fmt.Errorf("instrument %s tick_size: %w", inst.Symbol, err)
		}
		if inst.lot, err = parsePositiveDecimal(inst.LotSize, "1"); err != nil {
			return fmt.Errorf("instrument %s lot_size: %w", inst.Symbol, err)
		}
	}
	for _, credit := range c.Credits {
		if credit.Account == "" || credit.Asset == "" {
			return fmt.Errorf("credit entries need account and asset")
		}
		if !seen[credit.Instrument] {
			return fmt.Errorf("credit for %s names unknown instrument %s",
				credit.Account, credit.Instrument)
		}
		if credit.Amount <= 0 {
			return fmt.Errorf("credit for %s must be > 0", credit.Account)
		}
	}
	return nil
}

// Specs converts the instrument list into domain specs.
func (c *Config) Specs() []domain.InstrumentSpec {
	specs := make([]domain.InstrumentSpec, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		specs = append(specs, domain.InstrumentSpec{
			Symbol: domain.Instrument(inst.Symbol),
			Base:   domain.Asset(inst.Base),
			Quote:  domain.Asset(inst.Quote),
		})
	}
	return specs
}

// Instrument returns the config entry for a symbol.
func (c *Config) Instrument(symbol string) (*InstrumentConfig, bool) {
	for i := range c.Instruments {
		if c.Instruments[i].Symbol == symbol {
			return &c.Instruments[i], true
		}
	}
	return nil, false
}

// PriceToTicks converts a decimal quote price into ticks. The price must be
// an exact multiple of the tick size.
func (ic *InstrumentConfig) PriceToTicks(price decimal.Decimal) (domain.Price, error) {
	ticks := price.Div(ic.tick)
	if !ticks.IsInteger() {
		return 0, fmt.Errorf("price %s is not a multiple of tick size %s", price, ic.tick)
	}
	return domain.Price(ticks.IntPart()), nil
}

// TicksToPrice converts integer ticks back into a decimal quote price.
func (ic *InstrumentConfig) TicksToPrice(ticks domain.Price) decimal.Decimal {
	return decimal.NewFromInt(int64(ticks)).Mul(ic.tick)
}

// QtyToLots converts a decimal base quantity into lots. The quantity must be
// an exact multiple of the lot size.
func (ic *InstrumentConfig) QtyToLots(qty decimal.Decimal) (domain.Qty, error) {
	lots := qty.Div(ic.lot)
	if !lots.IsInteger() {
		return 0, fmt.Errorf("qty %s is not a multiple of lot size %s", qty, ic.lot)
	}
	return domain.Qty(lots.IntPart()), nil
}

// LotsToQty converts integer lots back into a decimal base quantity.
func (ic *InstrumentConfig) LotsToQty(lots domain.Qty) decimal.Decimal {
	return decimal.NewFromInt(int64(lots)).Mul(ic.lot)
}

func parsePositiveDecimal(s, fallback string) (decimal.Decimal, error) {
	if s == "" {
		s = fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%s must be > 0", s)
	}
	return d, nil
}
