package margin

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// defaultRates holds the fallback margin rate per segment and product.
// Delivery blocks full notional value; leveraged products block a fraction,
// in the manner of Indian broker span/exposure schedules.
var defaultRates = map[string]float64{
	rateKey(models.SegmentEquity, models.ProductDelivery):     1.00,
	rateKey(models.SegmentEquity, models.ProductIntraday):     0.20,
	rateKey(models.SegmentEquity, models.ProductCarry):        1.00,
	rateKey(models.SegmentFutures, models.ProductIntraday):    0.15,
	rateKey(models.SegmentFutures, models.ProductCarry):       0.15,
	rateKey(models.SegmentOptions, models.ProductIntraday):    0.15,
	rateKey(models.SegmentOptions, models.ProductCarry):       0.15,
	rateKey(models.SegmentMCXFutures, models.ProductIntraday): 0.10,
	rateKey(models.SegmentMCXFutures, models.ProductCarry):    0.10,
	rateKey(models.SegmentMCXOptions, models.ProductIntraday): 0.10,
	rateKey(models.SegmentMCXOptions, models.ProductCarry):    0.10,
	rateKey(models.SegmentCrypto, models.ProductDelivery):     1.00,
	rateKey(models.SegmentCrypto, models.ProductIntraday):     0.50,
}

func rateKey(segment models.Segment, product models.ProductType) string {
	return fmt.Sprintf("%s.%s", segment, product)
}

// Reservation records one blocked margin amount. Release is idempotent: the
// released flag ensures a second release never credits twice.
type Reservation struct {
	ID     string
	UserID string
	Amount float64

	mu       sync.Mutex
	released bool
}

// Engine computes required margin, validates leverage against the whitelist,
// and reserves/releases margin against the account store.
type Engine struct {
	accounts *Accounts
	rates    map[string]float64
	leverage []float64
}

// NewEngine creates a margin engine. rateOverrides (keyed "SEGMENT.PRODUCT")
// take precedence over the built-in schedule; allowedLeverage is the
// whitelist of permitted multipliers.
func NewEngine(accounts *Accounts, rateOverrides map[string]float64, allowedLeverage []float64) *Engine {
	rates := make(map[string]float64, len(defaultRates)+len(rateOverrides))
	for k, v := range defaultRates {
		rates[k] = v
	}
	for k, v := range rateOverrides {
		rates[k] = v
	}
	return &Engine{
		accounts: accounts,
		rates:    rates,
		leverage: append([]float64(nil), allowedLeverage...),
	}
}

// Accounts returns the underlying balance store.
func (e *Engine) Accounts() *Accounts {
	return e.accounts
}

// ValidateLeverage checks the multiplier against the whitelist. Runs before
// any margin math.
func (e *Engine) ValidateLeverage(leverage float64) error {
	for _, l := range e.leverage {
		if l == leverage {
			return nil
		}
	}
	return errors.NewValidationError("leverage", leverage, "not in allowed leverage list")
}

// Rate returns the margin rate for a segment/product pair. Pairs missing
// from both the overrides and the schedule block full notional.
func (e *Engine) Rate(segment models.Segment, product models.ProductType) float64 {
	if rate, ok := e.rates[rateKey(segment, product)]; ok {
		return rate
	}
	return 1.0
}

// RequiredMargin computes the margin to block for an order:
// referencePrice * quantity * rate(segment, product) / leverage.
func (e *Engine) RequiredMargin(segment models.Segment, product models.ProductType, refPrice float64, quantity int, leverage float64) (float64, error) {
	if err := e.ValidateLeverage(leverage); err != nil {
		return 0, err
	}
	if quantity <= 0 {
		return 0, errors.NewValidationError("quantity", quantity, "must be positive")
	}
	if refPrice <= 0 {
		return 0, errors.NewValidationError("price", refPrice, "reference price must be positive")
	}

	return refPrice * float64(quantity) * e.Rate(segment, product) / leverage, nil
}

// Reserve blocks amount against the user's balance. Synchronous: it either
// completes or fails with an InsufficientFundsError before returning.
func (e *Engine) Reserve(userID string, amount float64) (*Reservation, error) {
	if err := e.accounts.Debit(userID, amount); err != nil {
		return nil, err
	}
	return &Reservation{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
	}, nil
}

// Release returns a reservation's margin to the account. Releasing an
// already-released reservation is a no-op.
func (e *Engine) Release(r *Reservation) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	e.accounts.Credit(r.UserID, r.Amount)
}
