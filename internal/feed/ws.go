package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"papertrader/internal/models"
)

// Source pushes ticks into the hub. The wire transport is an external
// collaborator; the engine depends only on the hub.
type Source interface {
	Run(ctx context.Context) error
}

// WSConfig holds configuration for the websocket tick source.
type WSConfig struct {
	URL        string
	MaxRetries int
	BaseDelay  time.Duration
}

// WSSource reads JSON-encoded ticks from a websocket endpoint and publishes
// them to the hub. Reconnects with exponential backoff on read failure.
type WSSource struct {
	config WSConfig
	hub    *Hub
	logger zerolog.Logger
}

// NewWSSource creates a websocket tick source.
func NewWSSource(cfg WSConfig, hub *Hub, logger zerolog.Logger) *WSSource {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	return &WSSource{
		config: cfg,
		hub:    hub,
		logger: logger,
	}
}

type wireTick struct {
	Token     uint32  `json:"token"`
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"ts"` // unix seconds
}

// Run connects and pumps ticks until the context is cancelled or the retry
// budget is exhausted.
func (s *WSSource) Run(ctx context.Context) error {
	retries := 0
	for {
		err := s.pump(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retries++
		if retries > s.config.MaxRetries {
			return err
		}

		delay := s.config.BaseDelay * time.Duration(1<<uint(retries-1))
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *WSSource) pump(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.Info().Str("url", s.config.URL).Msg("Feed connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var wt wireTick
		if err := json.Unmarshal(data, &wt); err != nil {
			s.logger.Debug().Err(err).Msg("Skipping malformed tick")
			continue
		}

		s.hub.Publish(models.Tick{
			Token:     wt.Token,
			Symbol:    wt.Symbol,
			LTP:       wt.LTP,
			BidPrice:  wt.Bid,
			AskPrice:  wt.Ask,
			Open:      wt.Open,
			High:      wt.High,
			Low:       wt.Low,
			Close:     wt.Close,
			Volume:    wt.Volume,
			Timestamp: time.Unix(wt.Timestamp, 0),
		})
	}
}
