// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"papertrader/internal/models"
)

// DataStore defines the persistence interface for the audit trail. Orders
// and positions are append-only: inserted on creation, then permitted a
// single update into their terminal/closed state.
type DataStore interface {
	// Orders
	SaveOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	GetOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)

	// Positions
	SavePosition(ctx context.Context, position *models.Position) error
	UpdatePosition(ctx context.Context, position *models.Position) error
	GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error)

	// Candles (sealed history only)
	SaveCandle(ctx context.Context, candle models.Candle) error
	GetCandles(ctx context.Context, token uint32, interval int64, limit int) ([]models.Candle, error)

	// Lifecycle
	Close() error
}

// OrderFilter represents filters for querying orders.
type OrderFilter struct {
	UserID   string
	Token    uint32
	Status   models.OrderStatus
	Terminal *bool
	Limit    int
}

// PositionFilter represents filters for querying positions.
type PositionFilter struct {
	UserID string
	Token  uint32
	Status models.PositionStatus
	Limit  int
}
