// Package models provides domain models for the trading simulator.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE    Exchange = "NSE"
	BSE    Exchange = "BSE"
	NFO    Exchange = "NFO" // F&O
	MCX    Exchange = "MCX" // Commodity
	CRYPTO Exchange = "CRYPTO"
)

// Segment represents the trading segment of an instrument.
type Segment string

const (
	SegmentEquity     Segment = "EQUITY"
	SegmentFutures    Segment = "FUTURES"
	SegmentOptions    Segment = "OPTIONS"
	SegmentMCXFutures Segment = "MCX_FUTURES"
	SegmentMCXOptions Segment = "MCX_OPTIONS"
	SegmentCrypto     Segment = "CRYPTO"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// RequiresPrice reports whether the order type needs a limit or trigger price.
func (t OrderType) RequiresPrice() bool {
	return t != OrderTypeMarket
}

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductIntraday ProductType = "INTRADAY"
	ProductDelivery ProductType = "DELIVERY"
	ProductCarry    ProductType = "CARRY_FORWARD"
)

// OptionType represents the option type of a derivative instrument.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
	OptionNone OptionType = ""
)

// Tick represents real-time market data for one instrument.
type Tick struct {
	Token     uint32
	Symbol    string
	LTP       float64
	BidPrice  float64
	AskPrice  float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timestamp time.Time
}

// Quote represents the latest known market quote for an instrument.
// The feed cache overwrites it wholesale on every tick; readers always
// see the most recent complete quote.
type Quote struct {
	Token         uint32
	Symbol        string
	LTP           float64
	BidPrice      float64
	AskPrice      float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	ChangePercent float64
	Timestamp     time.Time
}

// Candle represents OHLCV data for one time bucket.
type Candle struct {
	Token     uint32
	Interval  int64 // bucket width in seconds
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token      uint32
	Symbol     string
	Name       string
	Exchange   Exchange
	Segment    Segment
	LotSize    int
	TickSize   float64
	OptionType OptionType
	Strike     float64
	Expiry     time.Time
}

// IsCrypto reports whether the instrument trades in the crypto segment.
// Crypto pairs carry an implicit lot size of 1.
func (i Instrument) IsCrypto() bool {
	return i.Segment == SegmentCrypto
}
