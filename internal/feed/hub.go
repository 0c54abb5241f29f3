package feed

import (
	"context"
	"sync"

	"papertrader/internal/models"
)

// HubConfig holds configuration for the tick hub.
type HubConfig struct {
	// BufferSize is the size of each shard's tick channel buffer.
	BufferSize int
	// Shards is the number of worker goroutines. Ticks are routed to a shard
	// by instrument token, so ticks for one instrument are always processed
	// in arrival order while distinct instruments run in parallel.
	Shards int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize: 1000,
		Shards:     8,
	}
}

// Consumer processes ticks delivered by the hub.
type Consumer interface {
	// OnTick is called for every tick, in arrival order per instrument.
	OnTick(tick models.Tick)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(models.Tick)

// OnTick implements Consumer.
func (f ConsumerFunc) OnTick(tick models.Tick) { f(tick) }

// Hub fans incoming ticks out to registered consumers. Consumers run
// synchronously inside the shard worker; a tick for instrument I is fully
// consumed before the next tick for I is delivered.
type Hub struct {
	config    HubConfig
	shards    []chan models.Tick
	done      chan struct{}
	wg        sync.WaitGroup
	started   bool
	mu        sync.Mutex
	consumers []Consumer
	consMu    sync.RWMutex

	// Metrics
	metricsMu      sync.Mutex
	ticksReceived  uint64
	ticksProcessed uint64
	ticksDropped   uint64
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.Shards <= 0 {
		config.Shards = 1
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}

	shards := make([]chan models.Tick, config.Shards)
	for i := range shards {
		shards[i] = make(chan models.Tick, config.BufferSize)
	}

	return &Hub{
		config: config,
		shards: shards,
		done:   make(chan struct{}),
	}
}

// RegisterConsumer adds a consumer to receive ticks.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consMu.Unlock()
}

// Start launches the shard workers.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	for _, shard := range h.shards {
		h.wg.Add(1)
		go h.shardLoop(ctx, shard)
	}
}

func (h *Hub) shardLoop(ctx context.Context, shard chan models.Tick) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			h.drain(shard)
			return
		case tick := <-shard:
			h.deliver(tick)
		}
	}
}

// drain delivers ticks already buffered in the shard at shutdown.
func (h *Hub) drain(shard chan models.Tick) {
	for {
		select {
		case tick := <-shard:
			h.deliver(tick)
		default:
			return
		}
	}
}

func (h *Hub) deliver(tick models.Tick) {
	h.consMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consMu.RUnlock()

	for _, consumer := range consumers {
		consumer.OnTick(tick)
	}

	h.metricsMu.Lock()
	h.ticksProcessed++
	h.metricsMu.Unlock()
}

// Publish routes a tick to its instrument's shard. Non-blocking: if the
// shard buffer is full the tick is dropped and counted.
func (h *Hub) Publish(tick models.Tick) {
	h.metricsMu.Lock()
	h.ticksReceived++
	h.metricsMu.Unlock()

	shard := h.shards[int(tick.Token)%len(h.shards)]
	select {
	case shard <- tick:
	default:
		h.metricsMu.Lock()
		h.ticksDropped++
		h.metricsMu.Unlock()
	}
}

// Stop stops the hub and waits for the shard workers to drain.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	TicksReceived  uint64
	TicksProcessed uint64
	TicksDropped   uint64
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()

	return HubMetrics{
		TicksReceived:  h.ticksReceived,
		TicksProcessed: h.ticksProcessed,
		TicksDropped:   h.ticksDropped,
	}
}
