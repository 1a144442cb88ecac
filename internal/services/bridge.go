package services

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/nyota/internal/utils"
)

// Payment event statuses delivered over a notification channel.
const (
	EventSuccess = "SUCCESS"
	EventFailed  = "FAILED"
	EventTimeout = "TIMEOUT"
)

// PaymentEvent is the terminal message relayed from the webhook handler to a
// waiting browser connection.
type PaymentEvent struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// channelCapacity bounds each channel queue; publish drops when full.
const channelCapacity = 5

// Broker is an in-process registry of notification channels, one per browser
// tab waiting on a payment result. Constructed once at startup and passed to
// handlers; membership is guarded by a single mutex while the buffered channel
// itself carries messages without holding that lock.
type Broker struct {
	mu       sync.Mutex
	channels map[string]chan PaymentEvent
}

// NewBroker constructs an empty channel registry.
func NewBroker() *Broker {
	return &Broker{channels: make(map[string]chan PaymentEvent)}
}

// Subscribe returns the queue for channelID, creating it on first use. A
// reconnecting subscriber gets the existing queue back, so a message published
// during a network blip is not lost.
func (b *Broker) Subscribe(channelID string) <-chan PaymentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[channelID]; ok {
		return ch
	}
	ch := make(chan PaymentEvent, channelCapacity)
	b.channels[channelID] = ch
	return ch
}

// Publish enqueues an event for channelID without blocking. Events for unknown
// channels, and events that would overflow the queue, are dropped; the status
// poll endpoint covers both loss cases.
func (b *Broker) Publish(channelID string, event PaymentEvent) bool {
	b.mu.Lock()
	ch, ok := b.channels[channelID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- event:
		return true
	default:
		utils.GetLogger().Warn("notification channel full, dropping event",
			zap.String("channel_id", channelID),
			zap.String("status", event.Status))
		return false
	}
}

// Cleanup removes channelID from the registry. The channel is not closed: a
// subscriber that grabbed it before cleanup can still drain a buffered event.
// Publishing after cleanup is a silent no-op.
func (b *Broker) Cleanup(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, channelID)
}

// Size returns the number of registered channels.
func (b *Broker) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}
