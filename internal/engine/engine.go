package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/feed"
	"papertrader/internal/logging"
	"papertrader/internal/margin"
	"papertrader/internal/models"
	"papertrader/internal/refdata"
	"papertrader/internal/store"
)

// Engine owns the order lifecycle and the position ledger. Margin-mutating
// operations (place, cancel, execute, close) are serialized per user
// account; mark-to-market only reads the quote cache and writes the derived
// P&L field.
type Engine struct {
	refdata *refdata.Service
	quotes  *feed.Cache
	margin  *margin.Engine
	store   store.DataStore
	logger  zerolog.Logger

	mu           sync.RWMutex
	orders       map[string]*models.Order
	positions    map[string]*models.Position
	reservations map[string]*margin.Reservation // pending orders by order ID, open positions by position ID

	userMu sync.Mutex
	users  map[string]*sync.Mutex
}

// Option configures the engine.
type Option func(*Engine)

// WithStore attaches a persistence layer for the audit trail.
func WithStore(ds store.DataStore) Option {
	return func(e *Engine) { e.store = ds }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a new order/position engine.
func NewEngine(ref *refdata.Service, quotes *feed.Cache, marginEngine *margin.Engine, opts ...Option) *Engine {
	e := &Engine{
		refdata:      ref,
		quotes:       quotes,
		margin:       marginEngine,
		logger:       zerolog.Nop(),
		orders:       make(map[string]*models.Order),
		positions:    make(map[string]*models.Position),
		reservations: make(map[string]*margin.Reservation),
		users:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// userLock returns the exclusive section for one user account.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.userMu.Lock()
	defer e.userMu.Unlock()

	mu, ok := e.users[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.users[userID] = mu
	}
	return mu
}

// PlaceOrderRequest describes a user's order intent.
type PlaceOrderRequest struct {
	UserID   string
	Token    uint32
	Side     models.OrderSide
	Type     models.OrderType
	Product  models.ProductType
	Lots     int
	Leverage float64
	Price    float64 // limit/trigger price, required for non-market types
}

// PlaceOrder validates and places an order. Market orders execute
// immediately at the current reference price (ask for BUY, bid for SELL)
// and open a position atomically with the margin reservation. Limit/stop
// orders transition to OPEN and await the external trigger decision.
//
// Validation failures return before any state mutation. An insufficient
// funds failure records a REJECTED order carrying the shortfall and returns
// it alongside the error; nothing else is mutated.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	inst, err := e.refdata.GetInstrument(req.Token)
	if err != nil {
		return nil, errors.Wrapf(err, "placing order for token %d", req.Token)
	}

	if req.Lots <= 0 {
		return nil, errors.NewValidationError("lots", req.Lots, "must be positive")
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return nil, errors.NewValidationError("side", req.Side, "must be BUY or SELL")
	}
	if inst.LotSize <= 0 {
		// Register guards against this for non-crypto instruments; never
		// default silently for a tradable instrument.
		return nil, errors.NewValidationError("lot_size", inst.LotSize, "instrument has no lot size")
	}
	if req.Type.RequiresPrice() && req.Price <= 0 {
		return nil, errors.NewValidationError("price", req.Price, "limit/trigger price required")
	}

	leverage := req.Leverage
	if leverage == 0 {
		leverage = 1
	}

	quantity := req.Lots * inst.LotSize

	quote, err := e.quotes.GetQuote(req.Token)
	if err != nil {
		return nil, errors.Wrapf(err, "pricing order for %s", inst.Symbol)
	}

	refPrice := ExecutionPrice(req.Side, quote)
	required, err := e.margin.RequiredMargin(inst.Segment, req.Product, refPrice, quantity, leverage)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Token:     inst.Token,
		Symbol:    inst.Symbol,
		Exchange:  inst.Exchange,
		Segment:   inst.Segment,
		Side:      req.Side,
		Type:      req.Type,
		Product:   req.Product,
		Lots:      req.Lots,
		LotSize:   inst.LotSize,
		Quantity:  quantity,
		Price:     req.Price,
		Leverage:  leverage,
		Status:    models.OrderPending,
		PlacedAt:  now,
		UpdatedAt: now,
	}

	lock := e.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	reservation, err := e.margin.Reserve(req.UserID, required)
	if err != nil {
		order.Status = models.OrderRejected
		order.RejectReason = err.Error()
		var ife *errors.InsufficientFundsError
		if errors.As(err, &ife) {
			order.Shortfall = ife.Shortfall
		}
		e.recordOrder(ctx, order)
		logging.LogOrder(e.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
		return order, err
	}
	order.MarginBlocked = reservation.Amount

	e.mu.Lock()
	if req.Type == models.OrderTypeMarket {
		e.executeLocked(order, refPrice, reservation)
	} else {
		order.Status = models.OrderOpen
		e.reservations[order.ID] = reservation
		e.orders[order.ID] = order
	}
	e.mu.Unlock()

	e.persistPlacement(ctx, order)
	logging.LogOrder(e.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return order, nil
}

// executeLocked fills the order and opens its position. Caller holds both
// the user lock and e.mu, so the margin reservation and the position
// creation are never observably separated.
func (e *Engine) executeLocked(order *models.Order, price float64, reservation *margin.Reservation) {
	now := time.Now()
	position := &models.Position{
		ID:           uuid.NewString(),
		UserID:       order.UserID,
		OrderID:      order.ID,
		Token:        order.Token,
		Symbol:       order.Symbol,
		Exchange:     order.Exchange,
		Segment:      order.Segment,
		Side:         order.Side,
		Product:      order.Product,
		Quantity:     order.Quantity,
		LotSize:      order.LotSize,
		EntryPrice:   price,
		CurrentPrice: price,
		MarginUsed:   reservation.Amount,
		Leverage:     order.Leverage,
		Status:       models.PositionOpen,
		OpenedAt:     now,
	}

	order.Status = models.OrderExecuted
	order.FilledQty = order.Quantity
	order.AveragePrice = price
	order.PositionID = position.ID
	order.UpdatedAt = now

	delete(e.reservations, order.ID)
	e.reservations[position.ID] = reservation
	e.orders[order.ID] = order
	e.positions[position.ID] = position
}

// ExecuteOrder executes a pending LIMIT/SL order. The price-crossing check
// itself runs on the ingestion side; it calls back here with the exit
// decision and the bid/ask at trigger time.
func (e *Engine) ExecuteOrder(ctx context.Context, orderID string, bid, ask float64) (*models.Order, error) {
	order, err := e.getOrder(orderID)
	if err != nil {
		return nil, err
	}

	lock := e.userLock(order.UserID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	if !order.Status.CanTransitionTo(models.OrderExecuted) {
		status := order.Status
		e.mu.Unlock()
		return nil, errors.NewInvalidStateError("order", orderID, string(status), "execute")
	}

	price := ExecutionPrice(order.Side, models.Quote{BidPrice: bid, AskPrice: ask})
	if price <= 0 {
		price = order.Price
	}

	reservation := e.reservations[order.ID]
	e.executeLocked(order, price, reservation)
	position := e.positions[order.PositionID]
	e.mu.Unlock()

	e.persistExecution(ctx, order, position)
	logging.LogOrder(e.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return order, nil
}

// CancelOrder cancels a pending order and releases its blocked margin.
// Legal only from OPEN or PARTIALLY_EXECUTED.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return e.retireOrder(ctx, orderID, "cancel")
}

// ExpireOrder retires a pending order on the trigger evaluator's expire
// decision. Identical transition to a user cancel.
func (e *Engine) ExpireOrder(ctx context.Context, orderID string) error {
	return e.retireOrder(ctx, orderID, "expire")
}

func (e *Engine) retireOrder(ctx context.Context, orderID, action string) error {
	order, err := e.getOrder(orderID)
	if err != nil {
		return err
	}

	lock := e.userLock(order.UserID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	if !order.Status.CanTransitionTo(models.OrderCancelled) {
		status := order.Status
		e.mu.Unlock()
		return errors.NewInvalidStateError("order", orderID, string(status), action)
	}

	reservation := e.reservations[order.ID]
	delete(e.reservations, order.ID)
	order.Status = models.OrderCancelled
	order.UpdatedAt = time.Now()
	e.mu.Unlock()

	e.margin.Release(reservation)

	e.persistOrderUpdate(ctx, order)
	logging.LogOrder(e.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	return nil
}

func (e *Engine) getOrder(orderID string) (*models.Order, error) {
	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	return order, nil
}

// recordOrder stores a rejected order in the ledger and audit trail.
func (e *Engine) recordOrder(ctx context.Context, order *models.Order) {
	e.mu.Lock()
	e.orders[order.ID] = order
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveOrder(ctx, order); err != nil {
			e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to persist order")
		}
	}
}

func (e *Engine) persistPlacement(ctx context.Context, order *models.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to persist order")
	}
	if order.PositionID != "" {
		e.mu.RLock()
		position := e.positions[order.PositionID]
		e.mu.RUnlock()
		if position != nil {
			if err := e.store.SavePosition(ctx, position); err != nil {
				e.logger.Warn().Err(err).Str("position_id", position.ID).Msg("Failed to persist position")
			}
		}
	}
}

func (e *Engine) persistExecution(ctx context.Context, order *models.Order, position *models.Position) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to persist order update")
	}
	if position != nil {
		if err := e.store.SavePosition(ctx, position); err != nil {
			e.logger.Warn().Err(err).Str("position_id", position.ID).Msg("Failed to persist position")
		}
	}
}

func (e *Engine) persistOrderUpdate(ctx context.Context, order *models.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to persist order update")
	}
}
