package refdata

import (
	"time"

	"papertrader/internal/models"
)

// builtinInstruments is the default tradable universe loaded when no
// instrument dump is supplied. Tokens follow the NSE convention of
// instrument_token = exchange_token * 256.
var builtinInstruments = []models.Instrument{
	{Token: 738561, Symbol: "RELIANCE", Name: "Reliance Industries", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 2953217, Symbol: "TCS", Name: "Tata Consultancy Services", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 408065, Symbol: "INFY", Name: "Infosys", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 341249, Symbol: "HDFCBANK", Name: "HDFC Bank", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 1270529, Symbol: "ICICIBANK", Name: "ICICI Bank", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 779521, Symbol: "SBIN", Name: "State Bank of India", Exchange: models.NSE, Segment: models.SegmentEquity, LotSize: 1, TickSize: 0.05},
	{Token: 13368834, Symbol: "NIFTYFUT", Name: "Nifty 50 Futures", Exchange: models.NFO, Segment: models.SegmentFutures, LotSize: 25, TickSize: 0.05, Expiry: monthlyExpiry()},
	{Token: 13401858, Symbol: "BANKNIFTYFUT", Name: "Bank Nifty Futures", Exchange: models.NFO, Segment: models.SegmentFutures, LotSize: 15, TickSize: 0.05, Expiry: monthlyExpiry()},
	{Token: 53496071, Symbol: "GOLDPETAL", Name: "Gold Petal Futures", Exchange: models.MCX, Segment: models.SegmentMCXFutures, LotSize: 1, TickSize: 1},
	{Token: 98001, Symbol: "BTCUSDT", Name: "Bitcoin / Tether", Exchange: models.CRYPTO, Segment: models.SegmentCrypto},
	{Token: 98002, Symbol: "ETHUSDT", Name: "Ether / Tether", Exchange: models.CRYPTO, Segment: models.SegmentCrypto},
}

// LoadDefaults registers the builtin instrument universe.
func (s *Service) LoadDefaults() error {
	for _, inst := range builtinInstruments {
		if err := s.Register(inst); err != nil {
			return err
		}
	}
	return nil
}

// monthlyExpiry returns the current month's derivatives expiry, the last
// Thursday at 15:30 IST.
func monthlyExpiry() time.Time {
	now := time.Now().In(istLocation())
	d := time.Date(now.Year(), now.Month()+1, 1, 15, 30, 0, 0, istLocation()).AddDate(0, 0, -1)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func istLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}
