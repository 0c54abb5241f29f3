// Package feed provides the price feed cache and tick distribution hub.
package feed

import (
	"sync"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// Cache holds the latest quote per instrument. Each tick overwrites the
// quote wholesale (last-write-wins, no merge).
type Cache struct {
	mu     sync.RWMutex
	quotes map[uint32]models.Quote
}

// NewCache creates an empty quote cache.
func NewCache() *Cache {
	return &Cache{
		quotes: make(map[uint32]models.Quote),
	}
}

// Update replaces the cached quote for the tick's instrument.
func (c *Cache) Update(tick models.Tick) {
	quote := models.Quote{
		Token:     tick.Token,
		Symbol:    tick.Symbol,
		LTP:       tick.LTP,
		BidPrice:  tick.BidPrice,
		AskPrice:  tick.AskPrice,
		Open:      tick.Open,
		High:      tick.High,
		Low:       tick.Low,
		Close:     tick.Close,
		Volume:    tick.Volume,
		Timestamp: tick.Timestamp,
	}
	if tick.Close > 0 {
		quote.ChangePercent = (tick.LTP - tick.Close) / tick.Close * 100
	}

	c.mu.Lock()
	c.quotes[tick.Token] = quote
	c.mu.Unlock()
}

// GetQuote returns the latest quote for an instrument, or a
// QuoteUnavailableError when no tick has been seen for it.
func (c *Cache) GetQuote(token uint32) (models.Quote, error) {
	c.mu.RLock()
	quote, ok := c.quotes[token]
	c.mu.RUnlock()

	if !ok {
		return models.Quote{}, errors.NewQuoteUnavailableError(token, "")
	}
	return quote, nil
}

// Tokens returns the instruments currently present in the cache.
func (c *Cache) Tokens() []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := make([]uint32, 0, len(c.quotes))
	for token := range c.quotes {
		tokens = append(tokens, token)
	}
	return tokens
}
