// Package book implements the single-instrument limit order book: price
// levels, sorted price ladders, the crossing algorithm, and the replay hook
// that rebuilds the book from the event journal.
package book

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/btree"

	"vidar/internal/domain"
)

// Fill is one maker consumed (fully or partially) during a match sweep.
// MakerPrice is the maker's resting price; trades always print there.
type Fill struct {
	MakerOrderID domain.OrderID
	MakerPrice   domain.Price
	Qty          domain.Qty
}

// TopOfBook is the best bid/ask pair. Comparable, so callers can snapshot it
// before a command and diff after.
type TopOfBook struct {
	Bid    domain.Price
	Ask    domain.Price
	HasBid bool
	HasAsk bool
}

type bookRef struct {
	side  domain.Side
	price domain.Price
}

type ladder = btree.BTreeG[domain.Price]

func newLadder() *ladder {
	return btree.NewBTreeG(func(a, b domain.Price) bool { return a < b })
}

// OrderBook keeps two price→level maps, two sorted price ladders, and an
// order-id index pointing back at (side, price). The ladders and maps must
// agree at all times; any drift between them is a bug and panics.
type OrderBook struct {
	instrument domain.Instrument

	bids map[domain.Price]*PriceLevel
	asks map[domain.Price]*PriceLevel

	bidLadder *ladder
	askLadder *ladder

	index map[domain.OrderID]bookRef

	logger zerolog.Logger
}

func NewOrderBook(instrument domain.Instrument, logger zerolog.Logger) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		bids:       make(map[domain.Price]*PriceLevel),
		asks:       make(map[domain.Price]*PriceLevel),
		bidLadder:  newLadder(),
		askLadder:  newLadder(),
		index:      make(map[domain.OrderID]bookRef),
		logger: logger.With().
			Str("component", "OrderBook").
			Str("instrument", string(instrument)).
			Logger(),
	}
}

func (b *OrderBook) Instrument() domain.Instrument { return b.instrument }

// BestBid returns the highest bid price, if any bids rest.
func (b *OrderBook) BestBid() (domain.Price, bool) {
	return b.bidLadder.Max()
}

// BestAsk returns the lowest ask price, if any asks rest.
func (b *OrderBook) BestAsk() (domain.Price, bool) {
	return b.askLadder.Min()
}

func (b *OrderBook) Top() TopOfBook {
	var top TopOfBook
	top.Bid, top.HasBid = b.BestBid()
	top.Ask, top.HasAsk = b.BestAsk()
	return top
}

// PlaceLimit matches order against the opposite side in price/time priority
// and, if rest is true, parks the unfilled remainder at its own price level.
// Returns the fills and the remaining quantity. The caller routes commands,
// so an instrument mismatch here is a programming error.
func (b *OrderBook) PlaceLimit(order *RestingOrder, rest bool) ([]Fill, domain.Qty) {
	if order.Instrument != b.instrument {
		panic(fmt.Sprintf("book: order %s for %s placed on %s",
			order.OrderID, order.Instrument, b.instrument))
	}

	fills, remaining := b.match(order.Side, order.Price, order.Remaining)

	if remaining > 0 && rest {
		order.Remaining = remaining
		level := b.ensureLevel(order.Side, order.Price)
		level.Add(order)
		b.index[order.OrderID] = bookRef{side: order.Side, price: order.Price}
		b.logger.Debug().
			Str("orderId", string(order.OrderID)).
			Int64("price", int64(order.Price)).
			Int64("remaining", int64(remaining)).
			Msg("order rested")
	}
	return fills, remaining
}

// Cancel removes a resting order by id. Returns false when the id is not in
// the book. Cancel never creates a level: the index pointing at a missing
// level means the structures have diverged, which is fatal.
func (b *OrderBook) Cancel(orderID domain.OrderID) bool {
	ref, ok := b.index[orderID]
	if !ok {
		return false
	}
	level := b.getLevel(ref.side, ref.price)
	if level == nil {
		panic(fmt.Sprintf("book: index entry %s points at missing %s level %d",
			orderID, ref.side, ref.price))
	}
	if !level.Cancel(orderID) {
		panic(fmt.Sprintf("book: index entry %s missing from %s level %d",
			orderID, ref.side, ref.price))
	}
	b.removeLevelIfEmpty(ref.side, ref.price)
	delete(b.index, orderID)
	b.logger.Debug().Str("orderId", string(orderID)).Msg("order canceled from book")
	return true
}

// Probe reports how many lots a taker at limit could fill right now, and the
// exact cost of that sweep, without touching the book. Used for the FOK
// all-or-nothing check and the funded market-buy cost check.
func (b *OrderBook) Probe(takerSide domain.Side, limit domain.Price, qty domain.Qty) (fillable domain.Qty, cost int64) {
	need := qty
	scan := func(price domain.Price) bool {
		if need <= 0 || !crosses(takerSide, limit, price) {
			return false
		}
		level := b.getLevel(takerSide.Opposite(), price)
		if level == nil {
			panic(fmt.Sprintf("book: ladder price %d missing from level map", price))
		}
		level.Each(func(maker *RestingOrder) bool {
			take := maker.Remaining
			if take > need {
				take = need
			}
			fillable += take
			cost += int64(take) * int64(price)
			need -= take
			return need > 0
		})
		return true
	}
	if takerSide == domain.Buy {
		b.askLadder.Scan(scan)
	} else {
		b.bidLadder.Reverse(scan)
	}
	return fillable, cost
}

// ApplyEvent rebuilds book state from a journal entry. Only rest, trade and
// cancel events move the book; everything else is a no-op here.
func (b *OrderBook) ApplyEvent(event domain.Event) {
	switch e := event.(type) {
	case domain.OrderRested:
		level := b.ensureLevel(e.Side, e.Price)
		level.Add(&RestingOrder{
			OrderID:    e.OrderID,
			Instrument: e.Instrument,
			Side:       e.Side,
			Price:      e.Price,
			Remaining:  e.Qty,
		})
		b.index[e.OrderID] = bookRef{side: e.Side, price: e.Price}
	case domain.TradeOccurred:
		b.reduceMaker(e.MakerOrderID, e.Qty)
	case domain.OrderCanceled:
		b.Cancel(e.OrderID)
	}
}

// reduceMaker consumes qty from a resting maker during replay, evicting it
// when it reaches zero. A trade against a maker the book does not hold means
// the journal and the book have diverged.
func (b *OrderBook) reduceMaker(orderID domain.OrderID, qty domain.Qty) {
	ref, ok := b.index[orderID]
	if !ok {
		panic(fmt.Sprintf("book: trade against unknown maker %s", orderID))
	}
	level := b.getLevel(ref.side, ref.price)
	if level == nil {
		panic(fmt.Sprintf("book: index entry %s points at missing %s level %d",
			orderID, ref.side, ref.price))
	}
	maker := level.Get(orderID)
	if maker == nil {
		panic(fmt.Sprintf("book: index entry %s missing from %s level %d",
			orderID, ref.side, ref.price))
	}
	maker.Remaining -= qty
	if maker.Remaining <= 0 {
		level.Cancel(orderID)
		delete(b.index, orderID)
		b.removeLevelIfEmpty(ref.side, ref.price)
	}
}

// Snapshot returns all resting orders, bids descending then asks ascending,
// FIFO within a level. Intended for replay-fidelity comparisons.
func (b *OrderBook) Snapshot() []RestingOrder {
	var out []RestingOrder
	collect := func(side domain.Side) func(domain.Price) bool {
		return func(price domain.Price) bool {
			b.getLevel(side, price).Each(func(o *RestingOrder) bool {
				out = append(out, *o)
				return true
			})
			return true
		}
	}
	b.bidLadder.Reverse(collect(domain.Buy))
	b.askLadder.Scan(collect(domain.Sell))
	return out
}

// CheckInvariants verifies ladder/map agreement, index integrity, level
// non-emptiness and that the book is not crossed. Tests run it after every
// operation.
func (b *OrderBook) CheckInvariants() error {
	if err := b.checkSide(domain.Buy, b.bids, b.bidLadder); err != nil {
		return err
	}
	if err := b.checkSide(domain.Sell, b.asks, b.askLadder); err != nil {
		return err
	}
	for orderID, ref := range b.index {
		level := b.getLevel(ref.side, ref.price)
		if level == nil {
			return fmt.Errorf("index entry %s points at missing %s level %d",
				orderID, ref.side, ref.price)
		}
		if level.Get(orderID) == nil {
			return fmt.Errorf("index entry %s missing from %s level %d",
				orderID, ref.side, ref.price)
		}
	}
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		return fmt.Errorf("book crossed: best bid %d >= best ask %d", bid, ask)
	}
	return nil
}

func (b *OrderBook) checkSide(side domain.Side, levels map[domain.Price]*PriceLevel, prices *ladder) error {
	if prices.Len() != len(levels) {
		return fmt.Errorf("%s ladder has %d prices, level map has %d",
			side, prices.Len(), len(levels))
	}
	var err error
	prices.Scan(func(price domain.Price) bool {
		level, ok := levels[price]
		if !ok {
			err = fmt.Errorf("%s ladder price %d missing from level map", side, price)
			return false
		}
		if level.IsEmpty() {
			err = fmt.Errorf("%s level %d is empty", side, price)
			return false
		}
		level.Each(func(o *RestingOrder) bool {
			ref, ok := b.index[o.OrderID]
			if !ok || ref.side != side || ref.price != price {
				err = fmt.Errorf("resting order %s at %s level %d not indexed",
					o.OrderID, side, price)
				return false
			}
			return true
		})
		return err == nil
	})
	return err
}

func crosses(takerSide domain.Side, takerPrice, oppPrice domain.Price) bool {
	if takerSide == domain.Buy {
		return takerPrice >= oppPrice
	}
	return takerPrice <= oppPrice
}

func (b *OrderBook) match(takerSide domain.Side, takerPrice domain.Price, qty domain.Qty) ([]Fill, domain.Qty) {
	makerSide := takerSide.Opposite()
	bestOpp := b.BestAsk
	if takerSide == domain.Sell {
		bestOpp = b.BestBid
	}

	var fills []Fill
	remaining := qty
	for remaining > 0 {
		oppPrice, ok := bestOpp()
		if !ok || !crosses(takerSide, takerPrice, oppPrice) {
			break
		}
		level := b.getLevel(makerSide, oppPrice)
		if level == nil {
			panic(fmt.Sprintf("book: ladder price %d missing from level map", oppPrice))
		}
		for remaining > 0 && !level.IsEmpty() {
			maker := level.PeekOldest()
			fillQty := maker.Remaining
			if fillQty > remaining {
				fillQty = remaining
			}
			fills = append(fills, Fill{
				MakerOrderID: maker.OrderID,
				MakerPrice:   oppPrice,
				Qty:          fillQty,
			})
			remaining -= fillQty
			maker.Remaining -= fillQty
			if maker.Remaining == 0 {
				level.PopOldest()
				delete(b.index, maker.OrderID)
			}
		}
		b.removeLevelIfEmpty(makerSide, oppPrice)
	}
	return fills, remaining
}

func (b *OrderBook) sideOf(side domain.Side) (map[domain.Price]*PriceLevel, *ladder) {
	if side == domain.Buy {
		return b.bids, b.bidLadder
	}
	return b.asks, b.askLadder
}

func (b *OrderBook) getLevel(side domain.Side, price domain.Price) *PriceLevel {
	levels, _ := b.sideOf(side)
	return levels[price]
}

func (b *OrderBook) ensureLevel(side domain.Side, price domain.Price) *PriceLevel {
	levels, prices := b.sideOf(side)
	if level, ok := levels[price]; ok {
		if _, inLadder := prices.Get(price); !inLadder {
			panic(fmt.Sprintf("book: %s level %d missing from ladder", side, price))
		}
		return level
	}
	level := NewPriceLevel(price)
	levels[price] = level
	prices.Set(price)
	return level
}

func (b *OrderBook) removeLevelIfEmpty(side domain.Side, price domain.Price) {
	levels, prices := b.sideOf(side)
	level, ok := levels[price]
	if !ok || !level.IsEmpty() {
		return
	}
	delete(levels, price)
	if _, inLadder := prices.Delete(price); !inLadder {
		panic(fmt.Sprintf("book: %s ladder out of sync at price %d", side, price))
	}
}
