// Package venue routes commands to per-instrument engines and owns the
// single sequencing authority: one counter, one clock, shared by every
// engine, so event seq is strictly monotonic across instruments.
package venue

import (
	"fmt"

	"github.com/rs/zerolog"

	"vidar/internal/domain"
	"vidar/internal/engine"
	"vidar/internal/eventlog"
	"vidar/internal/infra"
)

// Config wires a venue. Clock defaults to the system clock; Sink, if set,
// additionally receives every event venue-wide (e.g. a Fanout broadcaster).
type Config struct {
	Specs  []domain.InstrumentSpec
	Clock  infra.Clock
	Sink   eventlog.Log
	Logger zerolog.Logger
}

// Venue is the single entry point for a multi-instrument session. One
// command at a time: Submit is synchronous and the venue is the sole mutator
// of its engines. Hosts embedding this in a server serialize externally.
type Venue struct {
	engines   map[domain.Instrument]*engine.Engine
	sequencer *infra.Sequencer
	journal   *eventlog.Memory
	sink      eventlog.Log
	logger    zerolog.Logger
}

func New(cfg Config) *Venue {
	clock := cfg.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	v := &Venue{
		engines:   make(map[domain.Instrument]*engine.Engine),
		sequencer: infra.NewSequencer(clock),
		journal:   eventlog.NewMemory(),
		sink:      cfg.Sink,
		logger:    cfg.Logger.With().Str("component", "Venue").Logger(),
	}
	sink := eventlog.Log(v.journal)
	if cfg.Sink != nil {
		sink = eventlog.Tee(v.journal, cfg.Sink)
	}
	for _, spec := range cfg.Specs {
		if _, ok := v.engines[spec.Symbol]; ok {
			panic(fmt.Sprintf("venue: duplicate instrument %s", spec.Symbol))
		}
		v.engines[spec.Symbol] = engine.New(engine.Config{
			Spec:     spec,
			NextMeta: v.sequencer.Next,
			Sink:     sink,
			Logger:   cfg.Logger,
		})
	}
	v.logger.Info().Int("instruments", len(cfg.Specs)).Msg("venue initialized")
	return v
}

// Submit routes one command to its instrument's engine. A command for an
// unknown instrument yields a single rejection, sequenced and journaled at
// the venue so the captured stream has no seq gaps.
func (v *Venue) Submit(command domain.Command) []domain.Event {
	base := command.Base()
	eng, ok := v.engines[base.Instrument]
	if !ok {
		v.logger.Warn().
			Str("instrument", string(base.Instrument)).
			Str("orderId", string(base.OrderID)).
			Msg("command rejected: instrument not found")
		seq, ts := v.sequencer.Next()
		reject := domain.OrderRejected{
			EventMeta: domain.EventMeta{Seq: seq, TsNs: ts, Instrument: base.Instrument},
			OrderID:   base.OrderID,
			Reason:    "instrument not found",
		}
		v.journal.Append(reject)
		if v.sink != nil {
			v.sink.Append(reject)
		}
		return []domain.Event{reject}
	}
	return eng.Submit(command)
}

// Deposit credits an account on the given instrument's ledger.
func (v *Venue) Deposit(instrument domain.Instrument, account domain.AccountID, asset domain.Asset, amount int64) ([]domain.Event, error) {
	eng, ok := v.engines[instrument]
	if !ok {
		return nil, fmt.Errorf("venue: instrument %s not found", instrument)
	}
	return eng.Deposit(account, asset, amount)
}

// Engine exposes one instrument's engine, mainly for state inspection.
func (v *Venue) Engine(instrument domain.Instrument) (*engine.Engine, bool) {
	eng, ok := v.engines[instrument]
	return eng, ok
}

// Journal returns the venue-wide event capture in sequencing order.
func (v *Venue) Journal() []domain.Event { return v.journal.All() }

// Seq reports the last sequence number handed out.
func (v *Venue) Seq() uint64 { return v.sequencer.Seq() }

// Replay rebuilds a venue from a captured multi-instrument stream. An event
// for an instrument outside specs means the stream and the configuration
// disagree, which is fatal. The sequencer resumes past the highest seq seen
// so new events never collide with replayed ones.
func Replay(cfg Config, events []domain.Event, rebuildBooks bool) *Venue {
	v := New(cfg)
	var maxSeq uint64
	for _, event := range events {
		meta := event.Meta()
		if meta.Seq > maxSeq {
			maxSeq = meta.Seq
		}
		eng, ok := v.engines[meta.Instrument]
		if !ok {
			// A venue-level rejection for an unknown instrument is the one
			// event legitimately sequenced outside any engine.
			if reject, isReject := event.(domain.OrderRejected); isReject && reject.Reason == "instrument not found" {
				v.journal.Append(event)
				continue
			}
			panic(fmt.Sprintf("venue: replay event seq %d for unknown instrument %s",
				meta.Seq, meta.Instrument))
		}
		eng.Restore(event, rebuildBooks)
		v.journal.Append(event)
	}
	v.sequencer.Reset(maxSeq)
	return v
}
