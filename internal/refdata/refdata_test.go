package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "papertrader/internal/errors"
	"papertrader/internal/models"
)

func TestRegisterAndLookup(t *testing.T) {
	svc := NewService()

	err := svc.Register(models.Instrument{
		Token:    738561,
		Symbol:   "RELIANCE",
		Exchange: models.NSE,
		Segment:  models.SegmentEquity,
		LotSize:  1,
		TickSize: 0.05,
	})
	require.NoError(t, err)

	byToken, err := svc.GetInstrument(738561)
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", byToken.Symbol)

	bySymbol, err := svc.Lookup(models.NSE, "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, uint32(738561), bySymbol.Token)
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService()

	var verr *apperrors.ValidationError

	err := svc.Register(models.Instrument{Symbol: "X", Exchange: models.NSE, LotSize: 1})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "token", verr.Field)

	err = svc.Register(models.Instrument{Token: 1, Exchange: models.NSE, LotSize: 1})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "symbol", verr.Field)

	err = svc.Register(models.Instrument{
		Token:    2,
		Symbol:   "NIFTYFUT",
		Exchange: models.NFO,
		Segment:  models.SegmentFutures,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lot_size", verr.Field)
}

func TestRegisterCryptoDefaultsLotSize(t *testing.T) {
	svc := NewService()

	err := svc.Register(models.Instrument{
		Token:    98001,
		Symbol:   "BTCUSDT",
		Exchange: models.CRYPTO,
		Segment:  models.SegmentCrypto,
	})
	require.NoError(t, err)

	inst, err := svc.GetInstrument(98001)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.LotSize)
}

func TestLookupUnknownInstrument(t *testing.T) {
	svc := NewService()

	_, err := svc.GetInstrument(42)
	assert.ErrorIs(t, err, apperrors.ErrInstrumentNotFound)

	_, err = svc.Lookup(models.NSE, "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrInstrumentNotFound)
}

func TestRegisterReplacesExisting(t *testing.T) {
	svc := NewService()

	require.NoError(t, svc.Register(models.Instrument{
		Token: 1, Symbol: "TCS", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05,
	}))
	require.NoError(t, svc.Register(models.Instrument{
		Token: 1, Symbol: "TCS", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.10,
	}))

	inst, err := svc.GetInstrument(1)
	require.NoError(t, err)
	assert.Equal(t, 0.10, inst.TickSize)
	assert.Len(t, svc.Instruments(), 1)
}
