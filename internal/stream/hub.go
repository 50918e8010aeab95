// Package stream provides real-time distribution of price and rate updates.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/logging"
)

// UpdateType is the data category of a published update.
type UpdateType string

const (
	// UpdateCurrency is a currency rate update.
	UpdateCurrency UpdateType = "currency"
	// UpdateStock is an equity quote update.
	UpdateStock UpdateType = "stocks"
)

// Topic names for outbound broadcasts.
const (
	TopicPrices = "prices"
)

// CategoryTopic returns the aggregate topic for a category.
func CategoryTopic(t UpdateType) string {
	return fmt.Sprintf("%s/%s", TopicPrices, t)
}

// SymbolTopic returns the per-symbol topic for a category.
func SymbolTopic(t UpdateType, symbol string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrices, t, symbol)
}

// UserTopic returns the private per-user destination.
func UserTopic(userID, destination string) string {
	return fmt.Sprintf("user/%s/%s", userID, destination)
}

// Update is one outbound broadcast message. PreviousPrice is nil when no
// prior value was cached for the (type, symbol) key.
type Update struct {
	Type          UpdateType             `json:"type"`
	Symbol        string                 `json:"symbol"`
	Price         float64                `json:"price"`
	PreviousPrice *float64               `json:"previousPrice"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Message is the envelope delivered to subscribers: a broadcast Update or
// a private payload.
type Message struct {
	Topic   string      `json:"topic"`
	Update  *Update     `json:"update,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// HubConfig holds configuration for the broadcast hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before logging.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      100,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub distributes updates to topic-keyed subscribers. It owns the shared
// last-price cache: publishes from independent ingestion jobs interleave
// freely, so the cache is a sync.Map rather than a locked map. The cache
// only feeds the PreviousPrice field of outgoing messages; it never
// suppresses sends — an unchanged price is republished.
type Hub struct {
	config      HubConfig
	logger      zerolog.Logger
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	lastPrices  sync.Map // "type|symbol" -> float64

	// Metrics
	published uint64
	delivered uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber represents a topic subscriber with metadata. DroppedCount is
// atomic: publishes from independent jobs fan out to the same subscriber
// concurrently.
type Subscriber struct {
	ID           string
	Channel      chan Message
	DroppedCount atomic.Int64
	CreatedAt    time.Time
}

// NewHub creates a new broadcast hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a new broadcast hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	return &Hub{
		config:      config,
		logger:      logger,
		subscribers: make(map[string][]*Subscriber),
	}
}

func cacheKey(t UpdateType, symbol string) string {
	return string(t) + "|" + symbol
}

// Publish sends an update for (type, symbol) to the per-symbol topic, the
// category topic and the generic aggregate topic. The previous price is
// read from the cache before the send and the new price written after,
// so the first update for a key carries a nil PreviousPrice.
func (h *Hub) Publish(t UpdateType, symbol string, price float64, extra map[string]interface{}) {
	update := &Update{
		Type:      t,
		Symbol:    symbol,
		Price:     price,
		Extra:     extra,
		Timestamp: time.Now(),
	}

	key := cacheKey(t, symbol)
	if prev, ok := h.lastPrices.Load(key); ok {
		p := prev.(float64)
		update.PreviousPrice = &p
	}

	h.metricsMu.Lock()
	h.published++
	h.metricsMu.Unlock()

	h.send(SymbolTopic(t, symbol), Message{Topic: SymbolTopic(t, symbol), Update: update})
	h.send(CategoryTopic(t), Message{Topic: CategoryTopic(t), Update: update})
	h.send(TopicPrices, Message{Topic: TopicPrices, Update: update})

	h.lastPrices.Store(key, price)
	logging.LogBroadcast(h.logger, SymbolTopic(t, symbol), symbol, price)
}

// LastPrice returns the cached last published price for a key.
func (h *Hub) LastPrice(t UpdateType, symbol string) (float64, bool) {
	v, ok := h.lastPrices.Load(cacheKey(t, symbol))
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

// ClearCache drops all cached last prices. Administrative operation; the
// cache never auto-expires.
func (h *Hub) ClearCache() {
	h.lastPrices.Range(func(key, _ interface{}) bool {
		h.lastPrices.Delete(key)
		return true
	})
}

// SendToUser delivers a private, best-effort message to one user's
// destination. Transport errors never propagate to the caller.
func (h *Hub) SendToUser(userID, destination string, payload interface{}) {
	topic := UserTopic(userID, destination)
	h.send(topic, Message{Topic: topic, Payload: payload})
}

// send fans a message out to a topic's subscribers. Non-blocking sends
// protect publishers from slow consumers. The read lock is held across
// the sends so a concurrent Unsubscribe or Close, which closes channels
// under the write lock, can never race a send on a closed channel.
func (h *Hub) send(topic string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[topic] {
		select {
		case sub.Channel <- msg:
			sub.DroppedCount.Store(0)
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
		default:
			dropped := sub.DroppedCount.Add(1)
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
			if dropped == int64(h.config.SlowConsumerDropThreshold) {
				h.logger.Warn().Str("topic", topic).Str("subscriber", sub.ID).
					Msg("Slow consumer dropping messages")
			}
		}
	}
}

// Subscribe adds a subscriber for a topic and returns its message channel.
func (h *Hub) Subscribe(topic string) <-chan Message {
	return h.SubscribeWithID(topic, "")
}

// SubscribeWithID adds a subscriber with a specific ID for a topic.
func (h *Hub) SubscribeWithID(topic, id string) <-chan Message {
	ch := make(chan Message, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[topic] = append(h.subscribers[topic], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel for a topic.
func (h *Hub) Unsubscribe(topic string, ch <-chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Close closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, topic)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	h.mu.RLock()
	subscribers := 0
	for _, subs := range h.subscribers {
		subscribers += len(subs)
	}
	topics := len(h.subscribers)
	h.mu.RUnlock()

	return HubMetrics{
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: subscribers,
		Topics:      topics,
	}
}

// HubMetrics contains hub performance counters.
type HubMetrics struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
	Topics      int
}
