package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/errors"
	"papertrader/internal/feed"
	"papertrader/internal/margin"
	"papertrader/internal/models"
	"papertrader/internal/refdata"
)

const (
	tokenEquity  = uint32(1)
	tokenFutures = uint32(2)
	testUser     = "u1"
)

func newTestEngine(t *testing.T, balance float64) (*Engine, *feed.Cache) {
	t.Helper()

	ref := refdata.NewService()
	require.NoError(t, ref.Register(models.Instrument{
		Token: tokenEquity, Symbol: "RELIANCE", Exchange: models.NSE,
		Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05,
	}))
	require.NoError(t, ref.Register(models.Instrument{
		Token: tokenFutures, Symbol: "NIFTYFUT", Exchange: models.NFO,
		Segment: models.SegmentFutures, LotSize: 25, TickSize: 0.05,
	}))

	cache := feed.NewCache()
	marginEngine := margin.NewEngine(margin.NewAccounts(balance), nil, []float64{1, 2, 5, 10})
	return NewEngine(ref, cache, marginEngine), cache
}

func feedTick(cache *feed.Cache, token uint32, ltp, bid, ask float64) {
	cache.Update(models.Tick{Token: token, LTP: ltp, BidPrice: bid, AskPrice: ask})
}

func marketBuy(lots int, leverage float64) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:   testUser,
		Token:    tokenEquity,
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Product:  models.ProductIntraday,
		Lots:     lots,
		Leverage: leverage,
	}
}

func TestMarketBuyExecutesAtAsk(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 5))
	require.NoError(t, err)

	assert.Equal(t, models.OrderExecuted, order.Status)
	assert.Equal(t, 10, order.Quantity)
	assert.InDelta(t, 101.0, order.AveragePrice, 1e-9)
	// equity intraday: 101 * 10 * 0.2 / 5
	assert.InDelta(t, 40.4, order.MarginBlocked, 1e-9)
	require.NotEmpty(t, order.PositionID)

	position, err := e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionOpen, position.Status)
	assert.InDelta(t, 101.0, position.EntryPrice, 1e-9)
	assert.InDelta(t, 40.4, position.MarginUsed, 1e-9)

	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10000-40.4, available, 1e-9)
	assert.InDelta(t, 40.4, blocked, 1e-9)
}

func TestMarketSellExecutesAtBid(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	req := marketBuy(5, 1)
	req.Side = models.OrderSideSell
	order, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.OrderExecuted, order.Status)
	assert.InDelta(t, 99.0, order.AveragePrice, 1e-9)
}

func TestFuturesLotMultiplication(t *testing.T) {
	e, cache := newTestEngine(t, 1000000)
	feedTick(cache, tokenFutures, 20000, 19999, 20001)

	order, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:  testUser,
		Token:   tokenFutures,
		Side:    models.OrderSideBuy,
		Type:    models.OrderTypeMarket,
		Product: models.ProductCarry,
		Lots:    2,
	})
	require.NoError(t, err)

	// 2 lots x 25 per lot
	assert.Equal(t, 50, order.Quantity)
	// futures carry: 20001 * 50 * 0.15 / 1
	assert.InDelta(t, 150007.5, order.MarginBlocked, 1e-6)
}

func TestInsufficientFundsRejectsWithShortfall(t *testing.T) {
	e, cache := newTestEngine(t, 100)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(100, 1))
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrInsufficientFunds))

	// The rejection itself is recorded as a terminal order.
	require.NotNil(t, order)
	assert.Equal(t, models.OrderRejected, order.Status)
	assert.NotEmpty(t, order.RejectReason)
	// required 101*100*0.2 = 2020, available 100
	assert.InDelta(t, 1920.0, order.Shortfall, 1e-9)
	assert.Empty(t, order.PositionID)

	history := e.ListHistory(testUser)
	require.Len(t, history.Orders, 1)
	assert.Equal(t, order.ID, history.Orders[0].ID)
	assert.Empty(t, history.Positions)

	// Nothing else mutated.
	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 100.0, available, 1e-9)
	assert.Zero(t, blocked)
}

func TestPlaceOrderValidation(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	t.Run("unknown instrument", func(t *testing.T) {
		req := marketBuy(1, 1)
		req.Token = 999
		_, err := e.PlaceOrder(context.Background(), req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInstrumentNotFound))
	})

	t.Run("non-positive lots", func(t *testing.T) {
		req := marketBuy(0, 1)
		_, err := e.PlaceOrder(context.Background(), req)
		require.Error(t, err)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("limit order requires price", func(t *testing.T) {
		req := marketBuy(1, 1)
		req.Type = models.OrderTypeLimit
		_, err := e.PlaceOrder(context.Background(), req)
		require.Error(t, err)
	})

	t.Run("unlisted leverage", func(t *testing.T) {
		req := marketBuy(1, 7)
		_, err := e.PlaceOrder(context.Background(), req)
		require.Error(t, err)
	})

	t.Run("validation failures leave no record", func(t *testing.T) {
		history := e.ListHistory(testUser)
		assert.Empty(t, history.Orders)
		assert.Empty(t, e.ListPendingOrders(testUser))
	})
}

func TestPlaceOrderQuoteUnavailable(t *testing.T) {
	e, _ := newTestEngine(t, 10000)

	_, err := e.PlaceOrder(context.Background(), marketBuy(1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuoteUnavailable))

	// Fail fast: no order recorded, no margin touched.
	assert.Empty(t, e.ListPendingOrders(testUser))
	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10000.0, available, 1e-9)
	assert.Zero(t, blocked)
}

func TestLimitOrderLifecycle(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	req := marketBuy(10, 1)
	req.Type = models.OrderTypeLimit
	req.Price = 98

	order, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, order.Status)
	assert.Empty(t, order.PositionID)

	pending := e.ListPendingOrders(testUser)
	require.Len(t, pending, 1)

	// Trigger fires: fill at the then-current ask.
	executed, err := e.ExecuteOrder(context.Background(), order.ID, 97.5, 98)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExecuted, executed.Status)
	assert.InDelta(t, 98.0, executed.AveragePrice, 1e-9)
	assert.NotEmpty(t, executed.PositionID)

	assert.Empty(t, e.ListPendingOrders(testUser))

	// A filled order cannot execute again.
	_, err = e.ExecuteOrder(context.Background(), order.ID, 97.5, 98)
	require.Error(t, err)
	var ise *errors.InvalidStateError
	assert.True(t, errors.As(err, &ise))
}

func TestCancelOrderReleasesMargin(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	req := marketBuy(10, 1)
	req.Type = models.OrderTypeLimit
	req.Price = 98

	order, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	_, blocked := e.Funds(testUser)
	assert.Greater(t, blocked, 0.0)

	require.NoError(t, e.CancelOrder(context.Background(), order.ID))

	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10000.0, available, 1e-9)
	assert.Zero(t, blocked)

	cancelled, err := e.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	// Cancelling a terminal order fails.
	err = e.CancelOrder(context.Background(), order.ID)
	require.Error(t, err)
	var ise *errors.InvalidStateError
	assert.True(t, errors.As(err, &ise))
}

func TestCancelExecutedOrderFails(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(1, 1))
	require.NoError(t, err)
	require.Equal(t, models.OrderExecuted, order.Status)

	err = e.CancelOrder(context.Background(), order.ID)
	require.Error(t, err)
	var ise *errors.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, string(models.OrderExecuted), ise.From)
}

func TestExpireOrder(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	req := marketBuy(5, 1)
	req.Type = models.OrderTypeStopLoss
	req.Price = 110

	order, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, e.ExpireOrder(context.Background(), order.ID))

	expired, err := e.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, expired.Status)

	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10000.0, available, 1e-9)
	assert.Zero(t, blocked)
}

func TestMarkToMarket(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	// BUY values at bid.
	feedTick(cache, tokenEquity, 105, 104, 106)
	e.OnTick(models.Tick{Token: tokenEquity})

	position, err := e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.InDelta(t, 104.0, position.CurrentPrice, 1e-9)
	assert.InDelta(t, (104.0-101.0)*10, position.UnrealizedPnL, 1e-9)

	// A tick on another instrument leaves the P&L untouched.
	e.OnTick(models.Tick{Token: tokenFutures})
	position, err = e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.InDelta(t, (104.0-101.0)*10, position.UnrealizedPnL, 1e-9)

	// Mark-to-market never touches margin.
	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10000-order.MarginBlocked, available, 1e-9)
	assert.InDelta(t, order.MarginBlocked, blocked, 1e-9)
}

func TestMarkToMarketIdempotent(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	feedTick(cache, tokenEquity, 105, 104, 106)
	e.OnTick(models.Tick{Token: tokenEquity})
	e.OnTick(models.Tick{Token: tokenEquity})
	e.OnTick(models.Tick{Token: tokenEquity})

	position, err := e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.InDelta(t, (104.0-101.0)*10, position.UnrealizedPnL, 1e-9)
}

func TestClosePositionSettlesPnL(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	// Exit with the bid at 111: realized = (111 - 101) * 10.
	realized, err := e.ClosePosition(context.Background(), order.PositionID, 111, 112)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, realized, 1e-9)

	position, err := e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, position.Status)
	assert.InDelta(t, 111.0, position.ExitPrice, 1e-9)
	assert.InDelta(t, 100.0, position.RealizedPnL, 1e-9)
	assert.False(t, position.ClosedAt.IsZero())

	// Margin released, P&L settled.
	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10100.0, available, 1e-9)
	assert.Zero(t, blocked)

	history := e.ListHistory(testUser)
	require.Len(t, history.Positions, 1)
}

func TestClosePositionTwiceFails(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	_, err = e.ClosePosition(context.Background(), order.PositionID, 111, 112)
	require.NoError(t, err)

	_, err = e.ClosePosition(context.Background(), order.PositionID, 120, 121)
	require.Error(t, err)
	var pne *errors.PositionNotOpenError
	require.True(t, errors.As(err, &pne))

	// The double close must not settle or release twice.
	available, blocked := e.Funds(testUser)
	assert.InDelta(t, 10100.0, available, 1e-9)
	assert.Zero(t, blocked)
}

func TestClosePositionFallbackToLTP(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	// No exit bid/ask supplied: fall back to the cached last-traded price.
	feedTick(cache, tokenEquity, 103, 0, 0)
	realized, err := e.ClosePosition(context.Background(), order.PositionID, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, (103.0-101.0)*10, realized, 1e-9)
}

func TestSquareOffRecordsReason(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	order, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	realized, err := e.SquareOff(context.Background(), order.PositionID, models.SquareOffTimeBased, 98, 99)
	require.NoError(t, err)
	assert.InDelta(t, (98.0-101.0)*10, realized, 1e-9)

	position, err := e.GetPositionByID(order.PositionID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionSquared, position.Status)
	assert.Equal(t, models.SquareOffTimeBased, position.SquareOff)
}

func TestBulkCloseFilters(t *testing.T) {
	e, cache := newTestEngine(t, 100000)
	feedTick(cache, tokenEquity, 100, 99, 101)
	feedTick(cache, tokenFutures, 20000, 19999, 20001)

	winner, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)

	loser, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:  testUser,
		Token:   tokenFutures,
		Side:    models.OrderSideBuy,
		Type:    models.OrderTypeMarket,
		Product: models.ProductIntraday,
		Lots:    1,
	})
	require.NoError(t, err)

	// Equity rallies, futures drop.
	feedTick(cache, tokenEquity, 110, 109, 111)
	e.OnTick(models.Tick{Token: tokenEquity})
	feedTick(cache, tokenFutures, 19900, 19899, 19901)
	e.OnTick(models.Tick{Token: tokenFutures})

	results := e.CloseProfitable(context.Background(), testUser)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, winner.PositionID, results[0].PositionID)
	assert.Greater(t, results[0].RealizedPnL, 0.0)

	// The losing position is still open.
	position, err := e.GetPositionByID(loser.PositionID)
	require.NoError(t, err)
	assert.True(t, position.IsOpen())

	results = e.CloseLosing(context.Background(), testUser)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Less(t, results[0].RealizedPnL, 0.0)

	assert.Empty(t, e.ListOpenPositions(testUser))
}

func TestBulkCloseAll(t *testing.T) {
	e, cache := newTestEngine(t, 100000)
	feedTick(cache, tokenEquity, 100, 99, 101)
	feedTick(cache, tokenFutures, 20000, 19999, 20001)

	_, err := e.PlaceOrder(context.Background(), marketBuy(10, 1))
	require.NoError(t, err)
	_, err = e.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:  testUser,
		Token:   tokenFutures,
		Side:    models.OrderSideSell,
		Type:    models.OrderTypeMarket,
		Product: models.ProductIntraday,
		Lots:    1,
	})
	require.NoError(t, err)

	results := e.CloseAllPositions(context.Background(), testUser)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	assert.Empty(t, e.ListOpenPositions(testUser))
	_, blocked := e.Funds(testUser)
	assert.Zero(t, blocked)
}

func TestListHistoryShape(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	executed, err := e.PlaceOrder(context.Background(), marketBuy(1, 1))
	require.NoError(t, err)

	pending := marketBuy(1, 1)
	pending.Type = models.OrderTypeLimit
	pending.Price = 90
	open, err := e.PlaceOrder(context.Background(), pending)
	require.NoError(t, err)

	history := e.ListHistory(testUser)
	// Terminal orders only: the pending limit order stays out.
	require.Len(t, history.Orders, 1)
	assert.Equal(t, executed.ID, history.Orders[0].ID)
	// The open position stays out of history.
	assert.Empty(t, history.Positions)

	require.Len(t, e.ListPendingOrders(testUser), 1)
	assert.Equal(t, open.ID, e.ListPendingOrders(testUser)[0].ID)
}

func TestQuickQuote(t *testing.T) {
	e, cache := newTestEngine(t, 10000)
	feedTick(cache, tokenEquity, 100, 99, 101)

	buy, err := e.QuickQuote(tokenEquity, models.OrderSideBuy)
	require.NoError(t, err)
	assert.InDelta(t, 99.0, buy, 1e-9)

	sell, err := e.QuickQuote(tokenEquity, models.OrderSideSell)
	require.NoError(t, err)
	assert.InDelta(t, 101.0, sell, 1e-9)

	_, err = e.QuickQuote(999, models.OrderSideBuy)
	require.Error(t, err)
}
