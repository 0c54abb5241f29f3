// Package refdata provides the instrument reference registry.
package refdata

import (
	"sync"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// Service holds static and semi-static instrument metadata. It is read-only
// to the order and position engine; an external process registers and
// refreshes instruments.
type Service struct {
	mu          sync.RWMutex
	instruments map[uint32]models.Instrument
	bySymbol    map[string]uint32 // "EXCHANGE:SYMBOL" -> token
}

// NewService creates an empty instrument registry.
func NewService() *Service {
	return &Service{
		instruments: make(map[uint32]models.Instrument),
		bySymbol:    make(map[string]uint32),
	}
}

// Register adds or replaces an instrument. Every non-crypto instrument must
// carry a positive lot size; a missing lot size is a hard validation failure,
// never silently defaulted.
func (s *Service) Register(inst models.Instrument) error {
	if inst.Token == 0 {
		return errors.NewValidationError("token", inst.Token, "instrument token required")
	}
	if inst.Symbol == "" {
		return errors.NewValidationError("symbol", inst.Symbol, "instrument symbol required")
	}
	if inst.IsCrypto() {
		if inst.LotSize == 0 {
			inst.LotSize = 1
		}
	} else if inst.LotSize <= 0 {
		return errors.NewValidationError("lot_size", inst.LotSize, "non-crypto instrument requires a positive lot size")
	}

	s.mu.Lock()
	s.instruments[inst.Token] = inst
	s.bySymbol[symbolKey(inst.Exchange, inst.Symbol)] = inst.Token
	s.mu.Unlock()

	return nil
}

// GetInstrument looks up an instrument by token.
func (s *Service) GetInstrument(token uint32) (models.Instrument, error) {
	s.mu.RLock()
	inst, ok := s.instruments[token]
	s.mu.RUnlock()

	if !ok {
		return models.Instrument{}, errors.ErrInstrumentNotFound
	}
	return inst, nil
}

// Lookup resolves an instrument by exchange and symbol.
func (s *Service) Lookup(exchange models.Exchange, symbol string) (models.Instrument, error) {
	s.mu.RLock()
	token, ok := s.bySymbol[symbolKey(exchange, symbol)]
	s.mu.RUnlock()

	if !ok {
		return models.Instrument{}, errors.ErrInstrumentNotFound
	}
	return s.GetInstrument(token)
}

// Instruments returns a snapshot of all registered instruments.
func (s *Service) Instruments() []models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst)
	}
	return out
}

func symbolKey(exchange models.Exchange, symbol string) string {
	return string(exchange) + ":" + symbol
}
