package book

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/domain"
)

const instr = domain.Instrument("BTC-USD")

func newTestBook() *OrderBook {
	return NewOrderBook(instr, zerolog.Nop())
}

func newOrder(id string, side domain.Side, price domain.Price, qty domain.Qty) *RestingOrder {
	return &RestingOrder{
		OrderID:    domain.OrderID(id),
		Instrument: instr,
		Side:       side,
		Price:      price,
		Remaining:  qty,
	}
}

// rest places a GTC-style order and asserts the invariants still hold.
func rest(t *testing.T, b *OrderBook, id string, side domain.Side, price domain.Price, qty domain.Qty) []Fill {
	t.Helper()
	fills, _ := b.PlaceLimit(newOrder(id, side, price, qty), true)
	require.NoError(t, b.CheckInvariants())
	return fills
}

func bestBid(t *testing.T, b *OrderBook) domain.Price {
	t.Helper()
	price, ok := b.BestBid()
	require.True(t, ok, "expected a best bid")
	return price
}

func bestAsk(t *testing.T, b *OrderBook) domain.Price {
	t.Helper()
	price, ok := b.BestAsk()
	require.True(t, ok, "expected a best ask")
	return price
}

func TestPlaceLimit_RestsWithoutCross(t *testing.T) {
	b := newTestBook()

	// 1. Build both sides away from each other.
	assert.Empty(t, rest(t, b, "b1", domain.Buy, 99, 10))
	assert.Empty(t, rest(t, b, "b2", domain.Buy, 98, 5))
	assert.Empty(t, rest(t, b, "s1", domain.Sell, 100, 10))
	assert.Empty(t, rest(t, b, "s2", domain.Sell, 101, 20))

	// 2. Best prices come off the ladders.
	assert.Equal(t, domain.Price(99), bestBid(t, b))
	assert.Equal(t, domain.Price(100), bestAsk(t, b))
	assert.Equal(t, TopOfBook{Bid: 99, Ask: 100, HasBid: true, HasAsk: true}, b.Top())
}

func TestPlaceLimit_FullFillAtMakerPrice(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 5)

	// Taker pays the maker's price, not its own limit.
	fills, remaining := b.PlaceLimit(newOrder("b1", domain.Buy, 110, 5), true)
	require.NoError(t, b.CheckInvariants())

	assert.Equal(t, []Fill{{MakerOrderID: "a1", MakerPrice: 100, Qty: 5}}, fills)
	assert.Equal(t, domain.Qty(0), remaining)
	assert.Equal(t, TopOfBook{}, b.Top())
}

func TestPlaceLimit_SweepsLevelsInPriceOrder(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 3)
	rest(t, b, "a2", domain.Sell, 101, 4)
	rest(t, b, "a3", domain.Sell, 102, 5)

	fills, remaining := b.PlaceLimit(newOrder("b1", domain.Buy, 102, 10), true)
	require.NoError(t, b.CheckInvariants())

	assert.Equal(t, []Fill{
		{MakerOrderID: "a1", MakerPrice: 100, Qty: 3},
		{MakerOrderID: "a2", MakerPrice: 101, Qty: 4},
		{MakerOrderID: "a3", MakerPrice: 102, Qty: 3},
	}, fills)
	assert.Equal(t, domain.Qty(0), remaining)

	// a3 keeps the remainder at the top of the ask ladder.
	assert.Equal(t, domain.Price(102), bestAsk(t, b))
	snapshot := b.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.Qty(2), snapshot[0].Remaining)
}

func TestPlaceLimit_FIFOWithinLevel(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 3)
	rest(t, b, "a2", domain.Sell, 100, 3)

	fills, _ := b.PlaceLimit(newOrder("b1", domain.Buy, 100, 4), true)
	require.NoError(t, b.CheckInvariants())

	assert.Equal(t, []Fill{
		{MakerOrderID: "a1", MakerPrice: 100, Qty: 3},
		{MakerOrderID: "a2", MakerPrice: 100, Qty: 1},
	}, fills)
}

func TestPlaceLimit_FIFOSurvivesCancels(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 2)
	rest(t, b, "a2", domain.Sell, 100, 2)
	rest(t, b, "a3", domain.Sell, 100, 2)

	// Remove the middle order; a1 then a3 must still match in that order.
	require.True(t, b.Cancel("a2"))
	require.NoError(t, b.CheckInvariants())

	fills, _ := b.PlaceLimit(newOrder("b1", domain.Buy, 100, 3), true)
	assert.Equal(t, []Fill{
		{MakerOrderID: "a1", MakerPrice: 100, Qty: 2},
		{MakerOrderID: "a3", MakerPrice: 100, Qty: 1},
	}, fills)
}

func TestPlaceLimit_NoRestDropsRemainder(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 2)

	// IOC-style placement: remainder is reported but never rests.
	fills, remaining := b.PlaceLimit(newOrder("b1", domain.Buy, 100, 5), false)
	require.NoError(t, b.CheckInvariants())

	assert.Len(t, fills, 1)
	assert.Equal(t, domain.Qty(3), remaining)
	assert.Equal(t, TopOfBook{}, b.Top())
	assert.False(t, b.Cancel("b1"))
}

func TestPlaceLimit_WrongInstrumentPanics(t *testing.T) {
	b := newTestBook()
	bad := newOrder("x1", domain.Buy, 100, 1)
	bad.Instrument = "ETH-USD"
	assert.Panics(t, func() { b.PlaceLimit(bad, true) })
}

func TestCancel_RemovesOrderAndEmptyLevel(t *testing.T) {
	b := newTestBook()
	rest(t, b, "b1", domain.Buy, 99, 10)
	rest(t, b, "b2", domain.Buy, 98, 5)

	require.True(t, b.Cancel("b1"))
	require.NoError(t, b.CheckInvariants())
	assert.Equal(t, domain.Price(98), bestBid(t, b))

	// Canceling again finds nothing and must not resurrect the level.
	assert.False(t, b.Cancel("b1"))
	require.NoError(t, b.CheckInvariants())
	assert.Equal(t, domain.Price(98), bestBid(t, b))
}

func TestCancel_UnknownIDIsFalse(t *testing.T) {
	b := newTestBook()
	assert.False(t, b.Cancel("nope"))
}

func TestProbe_ReportsLiquidityAndCost(t *testing.T) {
	b := newTestBook()
	rest(t, b, "a1", domain.Sell, 100, 3)
	rest(t, b, "a2", domain.Sell, 101, 4)
	rest(t, b, "a3", domain.Sell, 105, 50)

	// 1. Limited by price: only levels at or under 101 count.
	fillable, cost := b.Probe(domain.Buy, 101, 10)
	assert.Equal(t, domain.Qty(7), fillable)
	assert.Equal(t, int64(3*100+4*101), cost)

	// 2. Limited by quantity: the sweep stops once qty is covered.
	fillable, cost = b.Probe(domain.Buy, 105, 5)
	assert.Equal(t, domain.Qty(5), fillable)
	assert.Equal(t, int64(3*100+2*101), cost)

	// 3. The probe never mutates the book.
	require.NoError(t, b.CheckInvariants())
	assert.Equal(t, domain.Price(100), bestAsk(t, b))
	assert.Len(t, b.Snapshot(), 3)
}

func TestProbe_SellWalksBidsDescending(t *testing.T) {
	b := newTestBook()
	rest(t, b, "b1", domain.Buy, 99, 2)
	rest(t, b, "b2", domain.Buy, 98, 2)
	rest(t, b, "b3", domain.Buy, 90, 10)

	fillable, cost := b.Probe(domain.Sell, 95, 10)
	assert.Equal(t, domain.Qty(4), fillable)
	assert.Equal(t, int64(2*99+2*98), cost)
}

func TestApplyEvent_RebuildsBook(t *testing.T) {
	live := newTestBook()

	// 1. Drive a session against the live book, capturing journal-shaped
	// events the way the engine would emit them.
	var events []domain.Event
	restAndRecord := func(id string, side domain.Side, price domain.Price, qty domain.Qty) {
		fills, remaining := live.PlaceLimit(newOrder(id, side, price, qty), true)
		for _, fill := range fills {
			events = append(events, domain.TradeOccurred{
				EventMeta:    domain.EventMeta{Instrument: instr},
				TakerOrderID: domain.OrderID(id),
				MakerOrderID: fill.MakerOrderID,
				Price:        fill.MakerPrice,
				Qty:          fill.Qty,
			})
		}
		if remaining > 0 {
			events = append(events, domain.OrderRested{
				EventMeta: domain.EventMeta{Instrument: instr},
				OrderID:   domain.OrderID(id),
				Side:      side,
				Price:     price,
				Qty:       remaining,
			})
		}
	}
	restAndRecord("a1", domain.Sell, 100, 5)
	restAndRecord("a2", domain.Sell, 101, 5)
	restAndRecord("b1", domain.Buy, 100, 2)
	restAndRecord("b2", domain.Buy, 99, 4)
	require.True(t, live.Cancel("b2"))
	events = append(events, domain.OrderCanceled{
		EventMeta: domain.EventMeta{Instrument: instr},
		OrderID:   "b2",
	})

	// 2. Replay into a fresh book.
	rebuilt := newTestBook()
	for _, event := range events {
		rebuilt.ApplyEvent(event)
	}

	require.NoError(t, rebuilt.CheckInvariants())
	assert.Equal(t, live.Top(), rebuilt.Top())
	assert.Equal(t, live.Snapshot(), rebuilt.Snapshot())
}

func TestApplyEvent_IgnoresNonBookEvents(t *testing.T) {
	b := newTestBook()
	b.ApplyEvent(domain.OrderAccepted{EventMeta: domain.EventMeta{Instrument: instr}, OrderID: "x"})
	b.ApplyEvent(domain.TopOfBookChanged{EventMeta: domain.EventMeta{Instrument: instr}})
	b.ApplyEvent(domain.FundsCredited{EventMeta: domain.EventMeta{Instrument: instr}, AccountID: "a", Asset: "USD", Amount: 1})
	require.NoError(t, b.CheckInvariants())
	assert.Empty(t, b.Snapshot())
}
