package engine

import (
	"vidar/internal/book"
	"vidar/internal/domain"
)

// leg describes one funded side of a trade for settlement purposes. holdPerLot
// is how much of the hold asset was reserved per lot (the limit price for
// buys, one lot of base for sells); zero-value held means the order settles
// straight from available (market takers).
type leg struct {
	orderID    domain.OrderID
	account    domain.AccountID
	side       domain.Side
	holdPerLot int64
	held       bool
}

// holdFor computes the reservation a funded limit order takes: quote at the
// limit price for buys, base lots for sells.
func (e *Engine) holdFor(side domain.Side, price domain.Price, qty domain.Qty) (domain.Asset, int64) {
	if side == domain.Buy {
		return e.spec.Quote, int64(qty) * int64(price)
	}
	return e.spec.Base, int64(qty)
}

// settleLeg emits the ledger deltas for one side of a fill: consume the hold
// (if any), debit the outgoing asset, credit the incoming one. Returns how
// much hold was released so the caller can track the taker's remaining hold.
// Price improvement lands back in available automatically: the release is at
// the hold price, the debit at the trade price.
func (e *Engine) settleLeg(events *[]domain.Event, l leg, fill book.Fill) int64 {
	if l.account == "" {
		return 0
	}
	var outAsset, inAsset domain.Asset
	var outAmount, inAmount int64
	if l.side == domain.Buy {
		outAsset, inAsset = e.spec.Quote, e.spec.Base
		outAmount = int64(fill.Qty) * int64(fill.MakerPrice)
		inAmount = int64(fill.Qty)
	} else {
		outAsset, inAsset = e.spec.Base, e.spec.Quote
		outAmount = int64(fill.Qty)
		inAmount = int64(fill.Qty) * int64(fill.MakerPrice)
	}

	var released int64
	if l.held {
		released = int64(fill.Qty) * l.holdPerLot
		*events = append(*events, domain.FundsReleased{
			EventMeta: e.meta(),
			OrderID:   l.orderID,
			AccountID: l.account,
			Asset:     outAsset,
			Amount:    released,
		})
	}
	*events = append(*events, domain.FundsDebited{
		EventMeta: e.meta(),
		AccountID: l.account,
		Asset:     outAsset,
		Amount:    outAmount,
	})
	*events = append(*events, domain.FundsCredited{
		EventMeta: e.meta(),
		AccountID: l.account,
		Asset:     inAsset,
		Amount:    inAmount,
	})
	return released
}

// makerLeg builds the settlement leg for the resting side of a fill. Makers
// are always limit orders; if funded, their hold was taken at their own
// resting price, which is also the trade price.
func (e *Engine) makerLeg(fill book.Fill) leg {
	record, ok := e.state.Order(fill.MakerOrderID)
	if !ok {
		// The book held a maker the state never accepted.
		panic("engine: fill against unknown maker " + string(fill.MakerOrderID))
	}
	l := leg{
		orderID: record.OrderID,
		account: record.AccountID,
		side:    record.Side,
		held:    record.AccountID != "",
	}
	if l.side == domain.Buy {
		l.holdPerLot = int64(record.Price)
	} else {
		l.holdPerLot = 1
	}
	return l
}
