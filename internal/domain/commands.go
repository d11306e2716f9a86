package domain

// CommandBase carries the fields every client command shares. ClientTsNs is
// advisory only and never participates in ordering; AccountID may be empty
// for orders that trade without ledger effects.
type CommandBase struct {
	Instrument Instrument `json:"instrument"`
	AccountID  AccountID  `json:"account_id,omitempty"`
	OrderID    OrderID    `json:"order_id"`
	ClientTsNs int64      `json:"client_ts_ns"`
}

func (c CommandBase) Base() CommandBase { return c }

// Command is the tagged union of client requests. Handlers dispatch with a
// type switch; there is no other hierarchy.
type Command interface {
	Base() CommandBase
	commandKind() string
}

// PlaceLimit places a limit order at Price for Qty lots. PostOnly limits are
// only valid with GTC and are rejected rather than allowed to take.
type PlaceLimit struct {
	CommandBase
	Side     Side        `json:"side"`
	Price    Price       `json:"price"`
	Qty      Qty         `json:"qty"`
	TIF      TimeInForce `json:"tif"`
	PostOnly bool        `json:"post_only,omitempty"`
}

func (PlaceLimit) commandKind() string { return "PlaceLimit" }

// PlaceMarket sweeps the opposite side for Qty lots. Whatever cannot fill
// immediately expires; market orders never rest.
type PlaceMarket struct {
	CommandBase
	Side Side `json:"side"`
	Qty  Qty  `json:"qty"`
}

func (PlaceMarket) commandKind() string { return "PlaceMarket" }

// Cancel removes a resting order by id.
type Cancel struct {
	CommandBase
}

func (Cancel) commandKind() string { return "Cancel" }
