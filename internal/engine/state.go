// Package engine implements the per-instrument command state machine and the
// event fold that projects the journal into order records and account
// balances.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"vidar/internal/domain"
)

// OrderRecord is the engine's view of one order's lifecycle. Created by
// OrderAccepted, mutated only by later events for the same order.
type OrderRecord struct {
	Instrument domain.Instrument
	OrderID    domain.OrderID
	AccountID  domain.AccountID
	Side       domain.Side
	Price      domain.Price
	Qty        domain.Qty
	Remaining  domain.Qty
	Status     domain.OrderStatus
}

// Balance partitions an account's position in one asset. Both parts stay
// non-negative; the fold panics rather than let either go below zero.
type Balance struct {
	Available int64
	Held      int64
}

type balanceKey struct {
	account domain.AccountID
	asset   domain.Asset
}

type hold struct {
	account   domain.AccountID
	asset     domain.Asset
	remaining int64
}

// State is the event fold: a pure, deterministic function of the journal.
// Applying the same event prefix always yields the same state.
type State struct {
	orders   map[domain.OrderID]*OrderRecord
	balances map[balanceKey]*Balance
	holds    map[domain.OrderID]*hold
	logger   zerolog.Logger
}

func NewState(logger zerolog.Logger) *State {
	return &State{
		orders:   make(map[domain.OrderID]*OrderRecord),
		balances: make(map[balanceKey]*Balance),
		holds:    make(map[domain.OrderID]*hold),
		logger:   logger.With().Str("component", "State").Logger(),
	}
}

// Order looks up a record by id.
func (s *State) Order(orderID domain.OrderID) (OrderRecord, bool) {
	record, ok := s.orders[orderID]
	if !ok {
		return OrderRecord{}, false
	}
	return *record, true
}

// Available returns the spendable balance for (account, asset).
func (s *State) Available(account domain.AccountID, asset domain.Asset) int64 {
	if bal, ok := s.balances[balanceKey{account, asset}]; ok {
		return bal.Available
	}
	return 0
}

// Held returns the reserved balance for (account, asset).
func (s *State) Held(account domain.AccountID, asset domain.Asset) int64 {
	if bal, ok := s.balances[balanceKey{account, asset}]; ok {
		return bal.Held
	}
	return 0
}

// HoldRemaining reports how much of the reservation taken for orderID is
// still held.
func (s *State) HoldRemaining(orderID domain.OrderID) int64 {
	if h, ok := s.holds[orderID]; ok {
		return h.remaining
	}
	return 0
}

// Orders returns a copy of every order record, for replay comparisons.
func (s *State) Orders() map[domain.OrderID]OrderRecord {
	out := make(map[domain.OrderID]OrderRecord, len(s.orders))
	for id, record := range s.orders {
		out[id] = *record
	}
	return out
}

// Balances returns a copy of every (account, asset) balance.
func (s *State) Balances() map[domain.AccountID]map[domain.Asset]Balance {
	out := make(map[domain.AccountID]map[domain.Asset]Balance)
	for key, bal := range s.balances {
		if out[key.account] == nil {
			out[key.account] = make(map[domain.Asset]Balance)
		}
		out[key.account][key.asset] = *bal
	}
	return out
}

func (s *State) ApplyAll(events []domain.Event) {
	for _, e := range events {
		s.Apply(e)
	}
}

// Apply folds one event into the state. Ledger events that would drive a
// balance negative indicate an engine bug and panic; the engine validates
// before it emits.
func (s *State) Apply(event domain.Event) {
	switch e := event.(type) {
	case domain.OrderAccepted:
		s.orders[e.OrderID] = &OrderRecord{
			Instrument: e.Instrument,
			OrderID:    e.OrderID,
			AccountID:  e.AccountID,
			Side:       e.Side,
			Price:      e.Price,
			Qty:        e.Qty,
			Remaining:  e.Qty,
			Status:     domain.Active,
		}
	case domain.TradeOccurred:
		s.applyTrade(e)
	case domain.OrderCanceled:
		if record, ok := s.orders[e.OrderID]; ok && record.Status == domain.Active {
			record.Status = domain.Canceled
		}
	case domain.OrderExpired:
		if record, ok := s.orders[e.OrderID]; ok {
			record.Status = domain.Expired
		}
	case domain.FundsCredited:
		s.balance(e.AccountID, e.Asset).Available += e.Amount
	case domain.FundsDebited:
		bal := s.balance(e.AccountID, e.Asset)
		if bal.Available < e.Amount {
			panic(fmt.Sprintf("state: debit %d %s exceeds available %d for %s",
				e.Amount, e.Asset, bal.Available, e.AccountID))
		}
		bal.Available -= e.Amount
	case domain.FundsReserved:
		bal := s.balance(e.AccountID, e.Asset)
		if bal.Available < e.Amount {
			panic(fmt.Sprintf("state: reserve %d %s exceeds available %d for %s",
				e.Amount, e.Asset, bal.Available, e.AccountID))
		}
		bal.Available -= e.Amount
		bal.Held += e.Amount
		s.holds[e.OrderID] = &hold{
			account:   e.AccountID,
			asset:     e.Asset,
			remaining: e.Amount,
		}
	case domain.FundsReleased:
		bal := s.balance(e.AccountID, e.Asset)
		if bal.Held < e.Amount {
			panic(fmt.Sprintf("state: release %d %s exceeds held %d for %s",
				e.Amount, e.Asset, bal.Held, e.AccountID))
		}
		bal.Held -= e.Amount
		bal.Available += e.Amount
		s.releaseHold(e.OrderID, e.Amount)
	case domain.OrderRested, domain.OrderRejected, domain.TopOfBookChanged:
		// No state effect; the record (if any) already exists.
	default:
		panic(fmt.Sprintf("state: unsupported event %T", event))
	}
}

func (s *State) applyTrade(e domain.TradeOccurred) {
	for _, orderID := range []domain.OrderID{e.TakerOrderID, e.MakerOrderID} {
		record, ok := s.orders[orderID]
		if !ok {
			continue
		}
		record.Remaining -= e.Qty
		if record.Remaining < 0 {
			record.Remaining = 0
		}
		if record.Remaining == 0 && record.Status == domain.Active {
			record.Status = domain.Filled
		}
	}
}

func (s *State) balance(account domain.AccountID, asset domain.Asset) *Balance {
	key := balanceKey{account, asset}
	bal, ok := s.balances[key]
	if !ok {
		bal = &Balance{}
		s.balances[key] = bal
	}
	return bal
}

func (s *State) releaseHold(orderID domain.OrderID, amount int64) {
	h, ok := s.holds[orderID]
	if !ok {
		panic(fmt.Sprintf("state: release against unknown hold for %s", orderID))
	}
	h.remaining -= amount
	if h.remaining < 0 {
		panic(fmt.Sprintf("state: hold for %s over-released by %d", orderID, -h.remaining))
	}
	if h.remaining == 0 {
		delete(s.holds, orderID)
	}
}
