// Package engine implements the order state machine and the position ledger.
package engine

import (
	"papertrader/internal/models"
)

// ValuationPrice returns the price used to value or exit a position. A BUY
// position values at the current bid (the price the holder could sell at);
// a SELL position values at the current ask (the buy-back price). When a
// field is absent the fallback order is bid/ask, then last-traded price,
// then entry price, then 0. Every valuation in the system goes through this
// one function: mark-to-market, the quick-trade quote, and position close.
func ValuationPrice(side models.OrderSide, quote models.Quote, entryPrice float64) float64 {
	price := quote.BidPrice
	if side == models.OrderSideSell {
		price = quote.AskPrice
	}
	if price > 0 {
		return price
	}
	if quote.LTP > 0 {
		return quote.LTP
	}
	if entryPrice > 0 {
		return entryPrice
	}
	return 0
}

// ExecutionPrice returns the reference price for executing an order: ask for
// BUY (the taker buys at ask), bid for SELL, falling back to the last-traded
// price.
func ExecutionPrice(side models.OrderSide, quote models.Quote) float64 {
	price := quote.AskPrice
	if side == models.OrderSideSell {
		price = quote.BidPrice
	}
	if price > 0 {
		return price
	}
	return quote.LTP
}

// PnL computes (price - entryPrice) * sideSign * quantity. With the current
// valuation price it yields unrealized P&L; with the exit price, realized.
func PnL(entryPrice, price float64, side models.OrderSide, quantity int) float64 {
	return (price - entryPrice) * side.Sign() * float64(quantity)
}
