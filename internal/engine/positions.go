package engine

import (
	"context"
	"sort"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/logging"
	"papertrader/internal/models"
)

// OnTick revalues every open position on the tick's instrument from the
// latest cached quote. It runs on the feed hub's shard worker, so for a
// given token it never races with itself; margin-mutating operations are
// excluded by e.mu.
//
// A missing quote leaves positions at their last computed P&L.
func (e *Engine) OnTick(tick models.Tick) {
	quote, err := e.quotes.GetQuote(tick.Token)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, position := range e.positions {
		if position.Token != tick.Token || !position.IsOpen() {
			continue
		}
		price := ValuationPrice(position.Side, quote, position.EntryPrice)
		position.CurrentPrice = price
		position.UnrealizedPnL = PnL(position.EntryPrice, price, position.Side, position.Quantity)
	}
}

// ClosePosition closes an open position at the given exit bid/ask, releases
// its margin and settles the realized P&L into the user's balance. Returns
// the realized P&L. Closing anything but an OPEN position fails with
// PositionNotOpenError.
func (e *Engine) ClosePosition(ctx context.Context, positionID string, exitBid, exitAsk float64) (float64, error) {
	return e.close(ctx, positionID, exitBid, exitAsk, models.PositionClosed, "")
}

// SquareOff force-closes an open position, tagging it with the square-off
// reason. Same settlement path as a user close.
func (e *Engine) SquareOff(ctx context.Context, positionID string, reason models.SquareOffReason, exitBid, exitAsk float64) (float64, error) {
	return e.close(ctx, positionID, exitBid, exitAsk, models.PositionSquared, reason)
}

func (e *Engine) close(ctx context.Context, positionID string, exitBid, exitAsk float64, status models.PositionStatus, reason models.SquareOffReason) (float64, error) {
	e.mu.RLock()
	position, ok := e.positions[positionID]
	e.mu.RUnlock()
	if !ok {
		return 0, errors.ErrPositionNotFound
	}

	lock := e.userLock(position.UserID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	if !position.IsOpen() {
		current := position.Status
		e.mu.Unlock()
		return 0, errors.NewPositionNotOpenError(positionID, string(current))
	}

	exitQuote := models.Quote{BidPrice: exitBid, AskPrice: exitAsk}
	if cached, err := e.quotes.GetQuote(position.Token); err == nil {
		exitQuote.LTP = cached.LTP
	}
	exitPrice := ValuationPrice(position.Side, exitQuote, position.EntryPrice)
	realized := PnL(position.EntryPrice, exitPrice, position.Side, position.Quantity)

	position.Status = status
	position.SquareOff = reason
	position.ExitPrice = exitPrice
	position.RealizedPnL = realized
	position.ClosedAt = time.Now()

	reservation := e.reservations[position.ID]
	delete(e.reservations, position.ID)
	e.mu.Unlock()

	e.margin.Release(reservation)
	e.margin.Accounts().Settle(position.UserID, realized)

	if e.store != nil {
		if err := e.store.UpdatePosition(ctx, position); err != nil {
			e.logger.Warn().Err(err).Str("position_id", position.ID).Msg("Failed to persist position update")
		}
	}
	logging.LogTrade(e.logger, position.ID, position.Symbol, string(position.Side), position.Quantity, exitPrice)
	return realized, nil
}

// CloseResult is the per-position outcome of a bulk close.
type CloseResult struct {
	PositionID  string
	Symbol      string
	RealizedPnL float64
	Err         error
}

// CloseAllPositions closes every open position of the user at current
// market quotes. Positions that race to a non-open state, or whose quote
// is unavailable, are reported in their CloseResult; the batch never
// aborts early.
func (e *Engine) CloseAllPositions(ctx context.Context, userID string) []CloseResult {
	return e.closeWhere(ctx, userID, func(models.Position) bool { return true })
}

// CloseProfitable closes the user's open positions currently marked at a
// positive unrealized P&L.
func (e *Engine) CloseProfitable(ctx context.Context, userID string) []CloseResult {
	return e.closeWhere(ctx, userID, func(p models.Position) bool { return p.UnrealizedPnL > 0 })
}

// CloseLosing closes the user's open positions currently marked at a
// negative unrealized P&L.
func (e *Engine) CloseLosing(ctx context.Context, userID string) []CloseResult {
	return e.closeWhere(ctx, userID, func(p models.Position) bool { return p.UnrealizedPnL < 0 })
}

func (e *Engine) closeWhere(ctx context.Context, userID string, match func(models.Position) bool) []CloseResult {
	snapshot := e.ListOpenPositions(userID)

	results := make([]CloseResult, 0, len(snapshot))
	for _, position := range snapshot {
		if !match(position) {
			continue
		}
		result := CloseResult{PositionID: position.ID, Symbol: position.Symbol}

		quote, err := e.quotes.GetQuote(position.Token)
		if err != nil {
			// Close at the fallback chain without fresh bid/ask.
			quote = models.Quote{}
		}
		result.RealizedPnL, result.Err = e.ClosePosition(ctx, position.ID, quote.BidPrice, quote.AskPrice)
		results = append(results, result)
	}
	return results
}

// ListOpenPositions returns copies of the user's open positions, newest
// first.
func (e *Engine) ListOpenPositions(userID string) []models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	positions := make([]models.Position, 0)
	for _, position := range e.positions {
		if position.UserID == userID && position.IsOpen() {
			positions = append(positions, *position)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})
	return positions
}

// ListPendingOrders returns copies of the user's orders still awaiting a
// trigger decision, newest first.
func (e *Engine) ListPendingOrders(userID string) []models.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := make([]models.Order, 0)
	for _, order := range e.orders {
		if order.UserID != userID {
			continue
		}
		if order.Status == models.OrderOpen || order.Status == models.OrderPartFilled {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PlacedAt.After(orders[j].PlacedAt)
	})
	return orders
}

// History is the user's trading record: settled orders and exited
// positions.
type History struct {
	Orders    []models.Order
	Positions []models.Position
}

// ListHistory returns the user's terminal orders and closed positions,
// newest first.
func (e *Engine) ListHistory(userID string) History {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := History{Orders: make([]models.Order, 0), Positions: make([]models.Position, 0)}
	for _, order := range e.orders {
		if order.UserID == userID && order.Status.IsTerminal() {
			h.Orders = append(h.Orders, *order)
		}
	}
	for _, position := range e.positions {
		if position.UserID == userID && !position.IsOpen() {
			h.Positions = append(h.Positions, *position)
		}
	}
	sort.Slice(h.Orders, func(i, j int) bool {
		return h.Orders[i].PlacedAt.After(h.Orders[j].PlacedAt)
	})
	sort.Slice(h.Positions, func(i, j int) bool {
		return h.Positions[i].OpenedAt.After(h.Positions[j].OpenedAt)
	})
	return h
}

// GetOrderByID returns a copy of the order.
func (e *Engine) GetOrderByID(orderID string) (models.Order, error) {
	order, err := e.getOrder(orderID)
	if err != nil {
		return models.Order{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *order, nil
}

// GetPositionByID returns a copy of the position.
func (e *Engine) GetPositionByID(positionID string) (models.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	position, ok := e.positions[positionID]
	if !ok {
		return models.Position{}, errors.ErrPositionNotFound
	}
	return *position, nil
}

// QuickQuote returns the side-aware valuation price for the instrument:
// bid when holding BUY, ask when holding SELL, falling back to last traded
// price.
func (e *Engine) QuickQuote(token uint32, side models.OrderSide) (float64, error) {
	quote, err := e.quotes.GetQuote(token)
	if err != nil {
		return 0, err
	}
	return ValuationPrice(side, quote, 0), nil
}

// Funds reports the user's available and blocked balances.
func (e *Engine) Funds(userID string) (available, blocked float64) {
	accounts := e.margin.Accounts()
	return accounts.GetAvailable(userID), accounts.GetBlocked(userID)
}
