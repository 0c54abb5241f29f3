package models

import "time"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderOpen       OrderStatus = "OPEN"
	OrderPartFilled OrderStatus = "PARTIALLY_EXECUTED"
	OrderExecuted   OrderStatus = "EXECUTED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRejected   OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderExecuted, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// orderTransitions is the legal order status graph.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderOpen, OrderExecuted, OrderRejected},
	OrderOpen:       {OrderPartFilled, OrderExecuted, OrderCancelled},
	OrderPartFilled: {OrderExecuted, OrderCancelled},
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order represents a trading order. Orders are append-only audit records:
// once a terminal status is reached the record is never mutated again.
type Order struct {
	ID            string
	UserID        string
	Token         uint32
	Symbol        string
	Exchange      Exchange
	Segment       Segment
	Side          OrderSide
	Type          OrderType
	Product       ProductType
	Lots          int
	LotSize       int
	Quantity      int     // Lots * LotSize
	Price         float64 // limit/trigger price for non-market orders
	Leverage      float64
	MarginBlocked float64
	Status        OrderStatus
	RejectReason  string
	Shortfall     float64 // set when rejected for insufficient funds
	FilledQty     int
	AveragePrice  float64
	PositionID    string // set once the order opens a position
	PlacedAt      time.Time
	UpdatedAt     time.Time
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosed  PositionStatus = "CLOSED"
	PositionSquared PositionStatus = "SQUARED_OFF"
)

// SquareOffReason records why a position was force-closed.
type SquareOffReason string

const (
	SquareOffManual    SquareOffReason = "MANUAL"
	SquareOffTimeBased SquareOffReason = "TIME_BASED"
	SquareOffRisk      SquareOffReason = "RISK_MANAGEMENT"
	SquareOffExpiry    SquareOffReason = "EXPIRY"
	SquareOffLoss      SquareOffReason = "LOSS_THRESHOLD"
)

// Position represents a trading position. UnrealizedPnL is meaningful only
// while the position is OPEN; after close it is frozen and RealizedPnL plus
// ExitPrice become authoritative.
type Position struct {
	ID            string
	UserID        string
	OrderID       string
	Token         uint32
	Symbol        string
	Exchange      Exchange
	Segment       Segment
	Side          OrderSide
	Product       ProductType
	Quantity      int
	LotSize       int
	EntryPrice    float64
	CurrentPrice  float64
	MarginUsed    float64
	Leverage      float64
	UnrealizedPnL float64
	RealizedPnL   float64
	ExitPrice     float64
	Status        PositionStatus
	SquareOff     SquareOffReason
	OpenedAt      time.Time
	ClosedAt      time.Time
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}
