// vidar — a deterministic in-process matching venue.
//
// The demo driver loads the instrument universe from configs/config.yaml,
// seeds ledger credits, runs a short scripted session on each instrument,
// streams the resulting journal through the fanout log, and finally proves
// the journal is the source of truth by replaying it into a fresh venue and
// comparing state and books.
package main

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/config"
	"vidar/internal/domain"
	"vidar/internal/eventlog"
	"vidar/internal/infra"
	"vidar/internal/venue"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("VIDAR_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfgPath).Msg("unable to load config")
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()
	t, _ := tomb.WithContext(ctx)

	// Broadcast the journal as it is written.
	fan := eventlog.NewFanout(log.Logger)
	journalFeed := fan.Subscribe()
	t.Go(func() error { return fan.Run(t) })
	t.Go(func() error {
		printJournal(journalFeed)
		return nil
	})

	v := venue.New(venue.Config{
		Specs:  cfg.Specs(),
		Clock:  infra.SystemClock{},
		Sink:   fan,
		Logger: log.Logger,
	})

	for _, credit := range cfg.Credits {
		_, err := v.Deposit(
			domain.Instrument(credit.Instrument),
			domain.AccountID(credit.Account),
			domain.Asset(credit.Asset),
			credit.Amount,
		)
		if err != nil {
			log.Error().Err(err).Str("account", credit.Account).Msg("unable to seed credit")
			os.Exit(1)
		}
	}

	runSession(v, cfg)
	verifyReplay(v, cfg)

	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("journal pump exited with error")
	}
}

// runSession places a small scripted book on every instrument: two resting
// asks, a sweeping buy, an IOC remainder, and a cancel.
func runSession(v *venue.Venue, cfg *config.Config) {
	for i := range cfg.Instruments {
		ic := &cfg.Instruments[i]
		symbol := domain.Instrument(ic.Symbol)

		lowAsk := mustTicks(ic, "100")
		highAsk := mustTicks(ic, "101")
		bidAway := mustTicks(ic, "99")

		place(v, symbol, domain.Sell, lowAsk, 3, domain.GTC)
		place(v, symbol, domain.Sell, highAsk, 5, domain.GTC)
		bid1 := place(v, symbol, domain.Buy, bidAway, 2, domain.GTC)

		// Sweep the low ask and part of the high one.
		place(v, symbol, domain.Buy, highAsk, 6, domain.GTC)
		// IOC remainder expires instead of resting.
		place(v, symbol, domain.Buy, highAsk, 10, domain.IOC)

		v.Submit(domain.Cancel{CommandBase: domain.CommandBase{
			Instrument: symbol,
			OrderID:    bid1,
		}})

		log.Info().
			Str("instrument", ic.Symbol).
			Uint64("seq", v.Seq()).
			Msg("session script complete")
	}
}

func place(v *venue.Venue, symbol domain.Instrument, side domain.Side, price domain.Price, qty domain.Qty, tif domain.TimeInForce) domain.OrderID {
	orderID := infra.NewOrderID()
	v.Submit(domain.PlaceLimit{
		CommandBase: domain.CommandBase{Instrument: symbol, OrderID: orderID},
		Side:        side,
		Price:       price,
		Qty:         qty,
		TIF:         tif,
	})
	return orderID
}

// verifyReplay rebuilds a venue from the captured journal and compares every
// engine's state and book against the live one.
func verifyReplay(v *venue.Venue, cfg *config.Config) {
	replayed := venue.Replay(venue.Config{
		Specs:  cfg.Specs(),
		Clock:  infra.SystemClock{},
		Logger: log.Logger,
	}, v.Journal(), true)

	for _, spec := range cfg.Specs() {
		live, _ := v.Engine(spec.Symbol)
		rebuilt, _ := replayed.Engine(spec.Symbol)
		if !reflect.DeepEqual(live.State().Orders(), rebuilt.State().Orders()) ||
			!reflect.DeepEqual(live.State().Balances(), rebuilt.State().Balances()) ||
			!reflect.DeepEqual(live.Book().Snapshot(), rebuilt.Book().Snapshot()) {
			log.Error().
				Str("instrument", string(spec.Symbol)).
				Msg("replay diverged from live state")
			os.Exit(1)
		}
	}
	log.Info().
		Int("events", len(v.Journal())).
		Msg("replay reproduced live state and books")
}

func printJournal(feed <-chan domain.Event) {
	for event := range feed {
		meta := event.Meta()
		log.Info().
			Uint64("seq", meta.Seq).
			Str("instrument", string(meta.Instrument)).
			Str("kind", event.Kind()).
			Msg("journal")
	}
}

func mustTicks(ic *config.InstrumentConfig, price string) domain.Price {
	ticks, err := ic.PriceToTicks(decimal.RequireFromString(price))
	if err != nil {
		log.Error().Err(err).Str("price", price).Msg("bad demo price")
		os.Exit(1)
	}
	return ticks
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
