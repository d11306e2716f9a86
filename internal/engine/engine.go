package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vidar/internal/book"
	"vidar/internal/domain"
	"vidar/internal/eventlog"
)

var (
	ErrInvalidDeposit = errors.New("deposit amount must be > 0")
	ErrUnknownAccount = errors.New("account and asset must be non-empty")
)

// Config wires an engine. NextMeta is the metadata oracle; a venue passes a
// shared sequencer so seq is monotonic across instruments, a standalone
// engine brings its own. Sink, if set, receives every journaled event as
// well (the venue tees its own capture through here).
type Config struct {
	Spec     domain.InstrumentSpec
	NextMeta func() (uint64, int64)
	Sink     eventlog.Log
	Logger   zerolog.Logger
}

// Engine is the per-instrument command handler. Submit is synchronous and
// single-threaded: it returns only once the book, state and journal agree.
type Engine struct {
	spec     domain.InstrumentSpec
	nextMeta func() (uint64, int64)
	state    *State
	book     *book.OrderBook
	journal  *eventlog.Memory
	sink     eventlog.Log
	logger   zerolog.Logger
}

func New(cfg Config) *Engine {
	if cfg.NextMeta == nil {
		panic("engine: NextMeta is required")
	}
	logger := cfg.Logger.With().
		Str("component", "Engine").
		Str("instrument", string(cfg.Spec.Symbol)).
		Logger()
	e := &Engine{
		spec:     cfg.Spec,
		nextMeta: cfg.NextMeta,
		state:    NewState(cfg.Logger),
		book:     book.NewOrderBook(cfg.Spec.Symbol, cfg.Logger),
		journal:  eventlog.NewMemory(),
		sink:     cfg.Sink,
		logger:   logger,
	}
	e.logger.Info().Msg("engine initialized")
	return e
}

func (e *Engine) Instrument() domain.Instrument { return e.spec.Symbol }
func (e *Engine) Spec() domain.InstrumentSpec   { return e.spec }
func (e *Engine) State() *State                 { return e.state }
func (e *Engine) Book() *book.OrderBook         { return e.book }

// Journal returns a copy of every event this engine has committed.
func (e *Engine) Journal() []domain.Event { return e.journal.All() }

// Submit runs one command to completion: validate, match, emit events,
// journal them and fold them into state. The returned slice is exactly what
// was journaled, in order.
func (e *Engine) Submit(command domain.Command) []domain.Event {
	base := command.Base()
	var events []domain.Event
	if base.Instrument != e.spec.Symbol {
		e.logger.Warn().
			Str("orderId", string(base.OrderID)).
			Str("commandInstrument", string(base.Instrument)).
			Msg("command rejected: instrument mismatch")
		events = []domain.Event{e.reject(base.OrderID, "instrument mismatch")}
	} else {
		top := e.book.Top()
		events = e.handle(command)
		if newTop := e.book.Top(); newTop != top {
			events = append(events, domain.TopOfBookChanged{
				EventMeta: e.meta(),
				BestBid:   newTop.Bid,
				BestAsk:   newTop.Ask,
				HasBid:    newTop.HasBid,
				HasAsk:    newTop.HasAsk,
			})
		}
	}
	e.commit(events)
	return events
}

// Deposit credits an account through the journal so funded sessions replay
// exactly like unfunded ones.
func (e *Engine) Deposit(account domain.AccountID, asset domain.Asset, amount int64) ([]domain.Event, error) {
	if account == "" || asset == "" {
		return nil, ErrUnknownAccount
	}
	if amount <= 0 {
		return nil, ErrInvalidDeposit
	}
	events := []domain.Event{domain.FundsCredited{
		EventMeta: e.meta(),
		AccountID: account,
		Asset:     asset,
		Amount:    amount,
	}}
	e.commit(events)
	return events, nil
}

// Replay folds a captured event stream into a fresh engine. Events for other
// instruments are skipped. With rebuildBook the in-memory book is
// reconstructed too, and must end up identical to the one that produced the
// stream.
func Replay(cfg Config, events []domain.Event, rebuildBook bool) *Engine {
	e := New(cfg)
	for _, event := range events {
		if event.Meta().Instrument != e.spec.Symbol {
			continue
		}
		e.Restore(event, rebuildBook)
	}
	return e
}

// Restore applies one already-sequenced event during replay.
func (e *Engine) Restore(event domain.Event, rebuildBook bool) {
	e.journal.Append(event)
	e.state.Apply(event)
	if rebuildBook {
		e.book.ApplyEvent(event)
	}
}

func (e *Engine) commit(events []domain.Event) {
	for _, event := range events {
		e.journal.Append(event)
		if e.sink != nil {
			e.sink.Append(event)
		}
		e.state.Apply(event)
	}
}

func (e *Engine) meta() domain.EventMeta {
	seq, ts := e.nextMeta()
	return domain.EventMeta{Seq: seq, TsNs: ts, Instrument: e.spec.Symbol}
}

func (e *Engine) reject(orderID domain.OrderID, reason string) domain.OrderRejected {
	return domain.OrderRejected{
		EventMeta: e.meta(),
		OrderID:   orderID,
		Reason:    reason,
	}
}

func (e *Engine) handle(command domain.Command) []domain.Event {
	switch cmd := command.(type) {
	case domain.PlaceLimit:
		return e.handlePlaceLimit(cmd)
	case domain.PlaceMarket:
		return e.handlePlaceMarket(cmd)
	case domain.Cancel:
		return e.handleCancel(cmd)
	default:
		panic(fmt.Sprintf("engine: unsupported command %T", command))
	}
}

func (e *Engine) handlePlaceLimit(cmd domain.PlaceLimit) []domain.Event {
	if cmd.Qty <= 0 {
		return []domain.Event{e.reject(cmd.OrderID, "qty must be > 0")}
	}
	if cmd.Price <= 0 {
		return []domain.Event{e.reject(cmd.OrderID, "price must be > 0")}
	}
	if _, ok := e.state.Order(cmd.OrderID); ok {
		return []domain.Event{e.reject(cmd.OrderID, "duplicate order_id")}
	}
	if cmd.PostOnly {
		if cmd.TIF != domain.GTC {
			return []domain.Event{e.reject(cmd.OrderID, "post-only requires GTC")}
		}
		if e.wouldCross(cmd.Side, cmd.Price) {
			return []domain.Event{e.reject(cmd.OrderID, "post-only order would cross")}
		}
	}

	funded := cmd.AccountID != ""
	var holdAsset domain.Asset
	var holdAmount int64
	if funded {
		holdAsset, holdAmount = e.holdFor(cmd.Side, cmd.Price, cmd.Qty)
		if e.state.Available(cmd.AccountID, holdAsset) < holdAmount {
			return []domain.Event{e.reject(cmd.OrderID, "insufficient funds")}
		}
	}
	if cmd.TIF == domain.FOK {
		fillable, _ := e.book.Probe(cmd.Side, cmd.Price, cmd.Qty)
		if fillable < cmd.Qty {
			return []domain.Event{e.reject(cmd.OrderID, "FOK not fillable")}
		}
	}

	events := []domain.Event{domain.OrderAccepted{
		EventMeta: e.meta(),
		OrderID:   cmd.OrderID,
		AccountID: cmd.AccountID,
		Side:      cmd.Side,
		Price:     cmd.Price,
		Qty:       cmd.Qty,
	}}
	holdLeft := int64(0)
	if funded {
		events = append(events, domain.FundsReserved{
			EventMeta: e.meta(),
			OrderID:   cmd.OrderID,
			AccountID: cmd.AccountID,
			Asset:     holdAsset,
			Amount:    holdAmount,
		})
		holdLeft = holdAmount
	}

	fills, remaining := e.book.PlaceLimit(&book.RestingOrder{
		OrderID:    cmd.OrderID,
		Instrument: cmd.Instrument,
		Side:       cmd.Side,
		Price:      cmd.Price,
		Remaining:  cmd.Qty,
	}, cmd.TIF == domain.GTC)

	taker := leg{
		orderID: cmd.OrderID,
		account: cmd.AccountID,
		side:    cmd.Side,
		held:    funded,
	}
	if cmd.Side == domain.Buy {
		taker.holdPerLot = int64(cmd.Price)
	} else {
		taker.holdPerLot = 1
	}
	for _, fill := range fills {
		events = e.appendTrade(events, cmd.OrderID, fill)
		maker := e.makerLeg(fill)
		holdLeft -= e.settleLeg(&events, taker, fill)
		e.settleLeg(&events, maker, fill)
	}

	if remaining > 0 {
		switch cmd.TIF {
		case domain.GTC:
			events = append(events, domain.OrderRested{
				EventMeta: e.meta(),
				OrderID:   cmd.OrderID,
				Side:      cmd.Side,
				Price:     cmd.Price,
				Qty:       remaining,
			})
		case domain.IOC:
			events = append(events, domain.OrderExpired{
				EventMeta: e.meta(),
				OrderID:   cmd.OrderID,
				Side:      cmd.Side,
				Price:     cmd.Price,
				Qty:       remaining,
				Reason:    "IOC",
			})
			if funded && holdLeft > 0 {
				events = append(events, domain.FundsReleased{
					EventMeta: e.meta(),
					OrderID:   cmd.OrderID,
					AccountID: cmd.AccountID,
					Asset:     holdAsset,
					Amount:    holdLeft,
				})
			}
		case domain.FOK:
			// The probe guaranteed a full fill before matching started.
			panic(fmt.Sprintf("engine: FOK order %s left %d lots unfilled", cmd.OrderID, remaining))
		}
	}
	return events
}

func (e *Engine) handlePlaceMarket(cmd domain.PlaceMarket) []domain.Event {
	if cmd.Qty <= 0 {
		return []domain.Event{e.reject(cmd.OrderID, "qty must be > 0")}
	}
	if _, ok := e.state.Order(cmd.OrderID); ok {
		return []domain.Event{e.reject(cmd.OrderID, "duplicate order_id")}
	}

	price := domain.MarketSellPrice
	if cmd.Side == domain.Buy {
		price = domain.MarketBuyPrice
	}
	if cmd.AccountID != "" {
		if cmd.Side == domain.Buy {
			// Price the exact sweep rather than estimating from the best
			// ask, so settlement can never debit past available.
			_, cost := e.book.Probe(domain.Buy, domain.MarketBuyPrice, cmd.Qty)
			if e.state.Available(cmd.AccountID, e.spec.Quote) < cost {
				return []domain.Event{e.reject(cmd.OrderID, "insufficient funds")}
			}
		} else {
			if e.state.Available(cmd.AccountID, e.spec.Base) < int64(cmd.Qty) {
				return []domain.Event{e.reject(cmd.OrderID, "insufficient funds")}
			}
		}
	}

	events := []domain.Event{domain.OrderAccepted{
		EventMeta: e.meta(),
		OrderID:   cmd.OrderID,
		AccountID: cmd.AccountID,
		Side:      cmd.Side,
		Price:     price,
		Qty:       cmd.Qty,
	}}

	fills, remaining := e.book.PlaceLimit(&book.RestingOrder{
		OrderID:    cmd.OrderID,
		Instrument: cmd.Instrument,
		Side:       cmd.Side,
		Price:      price,
		Remaining:  cmd.Qty,
	}, false)

	taker := leg{
		orderID: cmd.OrderID,
		account: cmd.AccountID,
		side:    cmd.Side,
	}
	for _, fill := range fills {
		events = e.appendTrade(events, cmd.OrderID, fill)
		maker := e.makerLeg(fill)
		e.settleLeg(&events, taker, fill)
		e.settleLeg(&events, maker, fill)
	}

	if remaining > 0 {
		events = append(events, domain.OrderExpired{
			EventMeta: e.meta(),
			OrderID:   cmd.OrderID,
			Side:      cmd.Side,
			Price:     price,
			Qty:       remaining,
			Reason:    "unfilled",
		})
	}
	return events
}

func (e *Engine) handleCancel(cmd domain.Cancel) []domain.Event {
	record, ok := e.state.Order(cmd.OrderID)
	if !ok {
		return []domain.Event{e.reject(cmd.OrderID, "unknown order_id")}
	}
	if record.Status != domain.Active {
		return []domain.Event{e.reject(cmd.OrderID, "order not cancelable")}
	}
	if !e.book.Cancel(cmd.OrderID) {
		return []domain.Event{e.reject(cmd.OrderID, "order_id not in book")}
	}

	events := []domain.Event{domain.OrderCanceled{
		EventMeta: e.meta(),
		OrderID:   cmd.OrderID,
	}}
	if record.AccountID != "" {
		if holdLeft := e.state.HoldRemaining(cmd.OrderID); holdLeft > 0 {
			asset, _ := e.holdFor(record.Side, record.Price, record.Qty)
			events = append(events, domain.FundsReleased{
				EventMeta: e.meta(),
				OrderID:   cmd.OrderID,
				AccountID: record.AccountID,
				Asset:     asset,
				Amount:    holdLeft,
			})
		}
	}
	return events
}

func (e *Engine) appendTrade(events []domain.Event, takerID domain.OrderID, fill book.Fill) []domain.Event {
	return append(events, domain.TradeOccurred{
		EventMeta:    e.meta(),
		TakerOrderID: takerID,
		MakerOrderID: fill.MakerOrderID,
		Price:        fill.MakerPrice,
		Qty:          fill.Qty,
	})
}

// wouldCross reports whether a post-only order at price would take liquidity.
func (e *Engine) wouldCross(side domain.Side, price domain.Price) bool {
	if side == domain.Buy {
		if ask, ok := e.book.BestAsk(); ok && price >= ask {
			return true
		}
		return false
	}
	if bid, ok := e.book.BestBid(); ok && price <= bid {
		return true
	}
	return false
}
