package domain

// EventMeta is stamped onto every event by the sequencing authority. Seq is
// strictly monotonic across all instruments of a venue; TsNs comes from the
// injected clock.
type EventMeta struct {
	Seq        uint64     `json:"seq"`
	TsNs       int64      `json:"ts_ns"`
	Instrument Instrument `json:"instrument"`
}

func (m EventMeta) Meta() EventMeta { return m }

// Event is the tagged union written to the journal. The journal is the source
// of truth: EngineState and OrderBook are both rebuildable from it.
type Event interface {
	Meta() EventMeta
	Kind() string
}

// OrderAccepted opens the order's lifecycle and creates its record.
type OrderAccepted struct {
	EventMeta
	OrderID   OrderID   `json:"order_id"`
	AccountID AccountID `json:"account_id,omitempty"`
	Side      Side      `json:"side"`
	Price     Price     `json:"price"`
	Qty       Qty       `json:"qty"`
}

func (OrderAccepted) Kind() string { return "OrderAccepted" }

// OrderRejected is the client-error surface. It never mutates book or ledger.
type OrderRejected struct {
	EventMeta
	OrderID OrderID `json:"order_id"`
	Reason  string  `json:"reason"`
}

func (OrderRejected) Kind() string { return "OrderRejected" }

// OrderRested records the unfilled remainder entering the book.
type OrderRested struct {
	EventMeta
	OrderID OrderID `json:"order_id"`
	Side    Side    `json:"side"`
	Price   Price   `json:"price"`
	Qty     Qty     `json:"qty"`
}

func (OrderRested) Kind() string { return "OrderRested" }

// OrderCanceled removes a resting order at the owner's request.
type OrderCanceled struct {
	EventMeta
	OrderID OrderID `json:"order_id"`
}

func (OrderCanceled) Kind() string { return "OrderCanceled" }

// OrderExpired records a remainder that was not allowed to rest (IOC, or an
// unfilled market sweep). Side and Price are audit fields; replay ignores
// them.
type OrderExpired struct {
	EventMeta
	OrderID OrderID `json:"order_id"`
	Side    Side    `json:"side"`
	Price   Price   `json:"price"`
	Qty     Qty     `json:"qty"`
	Reason  string  `json:"reason"`
}

func (OrderExpired) Kind() string { return "OrderExpired" }

// TradeOccurred is one maker consumed by one taker. Price is always the
// maker's resting price.
type TradeOccurred struct {
	EventMeta
	TakerOrderID OrderID `json:"taker_order_id"`
	MakerOrderID OrderID `json:"maker_order_id"`
	Price        Price   `json:"price"`
	Qty          Qty     `json:"qty"`
}

func (TradeOccurred) Kind() string { return "TradeOccurred" }

// TopOfBookChanged fires at most once per command, after all other events for
// that command.
type TopOfBookChanged struct {
	EventMeta
	BestBid Price `json:"best_bid,omitempty"`
	BestAsk Price `json:"best_ask,omitempty"`
	HasBid  bool  `json:"has_bid"`
	HasAsk  bool  `json:"has_ask"`
}

func (TopOfBookChanged) Kind() string { return "TopOfBookChanged" }

// FundsCredited adds Amount to the account's available balance.
type FundsCredited struct {
	EventMeta
	AccountID AccountID `json:"account_id"`
	Asset     Asset     `json:"asset"`
	Amount    int64     `json:"amount"`
}

func (FundsCredited) Kind() string { return "FundsCredited" }

// FundsDebited removes Amount from the account's available balance. Applying
// it against insufficient available funds is an invariant violation, not a
// client error: the engine checks before it emits.
type FundsDebited struct {
	EventMeta
	AccountID AccountID `json:"account_id"`
	Asset     Asset     `json:"asset"`
	Amount    int64     `json:"amount"`
}

func (FundsDebited) Kind() string { return "FundsDebited" }

// FundsReserved moves Amount from available to held on behalf of OrderID.
type FundsReserved struct {
	EventMeta
	OrderID   OrderID   `json:"order_id"`
	AccountID AccountID `json:"account_id"`
	Asset     Asset     `json:"asset"`
	Amount    int64     `json:"amount"`
}

func (FundsReserved) Kind() string { return "FundsReserved" }

// FundsReleased moves Amount from held back to available, shrinking the hold
// taken for OrderID.
type FundsReleased struct {
	EventMeta
	OrderID   OrderID   `json:"order_id"`
	AccountID AccountID `json:"account_id"`
	Asset     Asset     `json:"asset"`
	Amount    int64     `json:"amount"`
}

func (FundsReleased) Kind() string { return "FundsReleased" }
