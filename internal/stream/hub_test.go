package stream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveUpdate(t *testing.T, ch <-chan Message) *Update {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg.Update)
		return msg.Update
	default:
		t.Fatal("expected a buffered message")
		return nil
	}
}

func TestPublish_FirstUpdateHasNoPreviousPrice(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ch := hub.Subscribe(SymbolTopic(UpdateCurrency, "USD"))

	hub.Publish(UpdateCurrency, "USD", 32.50, nil)
	first := receiveUpdate(t, ch)
	assert.InDelta(t, 32.50, first.Price, 1e-9)
	assert.Nil(t, first.PreviousPrice)

	hub.Publish(UpdateCurrency, "USD", 32.70, nil)
	second := receiveUpdate(t, ch)
	assert.InDelta(t, 32.70, second.Price, 1e-9)
	require.NotNil(t, second.PreviousPrice)
	assert.InDelta(t, 32.50, *second.PreviousPrice, 1e-9)
}

func TestPublish_UnchangedPriceIsRepublished(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ch := hub.Subscribe(SymbolTopic(UpdateStock, "THYAO"))

	hub.Publish(UpdateStock, "THYAO", 287.25, nil)
	receiveUpdate(t, ch)

	hub.Publish(UpdateStock, "THYAO", 287.25, nil)
	repeat := receiveUpdate(t, ch)
	assert.InDelta(t, 287.25, repeat.Price, 1e-9)
	require.NotNil(t, repeat.PreviousPrice)
	assert.InDelta(t, 287.25, *repeat.PreviousPrice, 1e-9)
}

func TestPublish_FansOutToAllThreeTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	symbolCh := hub.Subscribe(SymbolTopic(UpdateCurrency, "EUR"))
	categoryCh := hub.Subscribe(CategoryTopic(UpdateCurrency))
	allCh := hub.Subscribe(TopicPrices)

	hub.Publish(UpdateCurrency, "EUR", 36.50, map[string]interface{}{"sellingRate": 36.75})

	for _, ch := range []<-chan Message{symbolCh, categoryCh, allCh} {
		update := receiveUpdate(t, ch)
		assert.Equal(t, "EUR", update.Symbol)
		assert.InDelta(t, 36.50, update.Price, 1e-9)
		assert.Equal(t, 36.75, update.Extra["sellingRate"])
	}
}

func TestPublish_TypeScopesTheCache(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	hub.Publish(UpdateCurrency, "USD", 32.50, nil)
	hub.Publish(UpdateStock, "USD", 150.00, nil)

	rate, ok := hub.LastPrice(UpdateCurrency, "USD")
	require.True(t, ok)
	assert.InDelta(t, 32.50, rate, 1e-9)

	stock, ok := hub.LastPrice(UpdateStock, "USD")
	require.True(t, ok)
	assert.InDelta(t, 150.00, stock, 1e-9)
}

func TestLastPrice_UnknownKey(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	_, ok := hub.LastPrice(UpdateCurrency, "JPY")
	assert.False(t, ok)
}

func TestClearCache(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ch := hub.Subscribe(SymbolTopic(UpdateCurrency, "USD"))

	hub.Publish(UpdateCurrency, "USD", 32.50, nil)
	receiveUpdate(t, ch)

	hub.ClearCache()

	_, ok := hub.LastPrice(UpdateCurrency, "USD")
	assert.False(t, ok)

	// the next publish behaves like the first one again
	hub.Publish(UpdateCurrency, "USD", 32.70, nil)
	update := receiveUpdate(t, ch)
	assert.Nil(t, update.PreviousPrice)
}

func TestSendToUser_DeliversPrivatePayload(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ch := hub.Subscribe(UserTopic("user-1", "alerts"))
	otherCh := hub.Subscribe(UserTopic("user-2", "alerts"))

	hub.SendToUser("user-1", "alerts", map[string]string{"symbol": "THYAO"})

	msg := <-ch
	assert.Equal(t, "user/user-1/alerts", msg.Topic)
	assert.Nil(t, msg.Update)
	require.NotNil(t, msg.Payload)

	select {
	case <-otherCh:
		t.Fatal("message leaked to another user's topic")
	default:
	}
}

func TestSlowConsumer_DropsInsteadOfBlocking(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{
		SubscriberBufferSize:      1,
		SlowConsumerDropThreshold: 2,
	}, zerolog.Nop())
	defer hub.Close()

	hub.Subscribe(TopicPrices)

	// buffer holds one message; the rest are dropped without blocking
	for i := 0; i < 5; i++ {
		hub.Publish(UpdateStock, "THYAO", float64(100+i), nil)
	}

	m := hub.Metrics()
	assert.Equal(t, uint64(5), m.Published)
	assert.Equal(t, uint64(1), m.Delivered)
	assert.Equal(t, uint64(4), m.Dropped)
}

func TestConcurrentPublishersShareOneSubscriber(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{
		SubscriberBufferSize:      1,
		SlowConsumerDropThreshold: 3,
	}, zerolog.Nop())
	defer hub.Close()

	hub.Subscribe(TopicPrices)

	const publishers = 8
	const updates = 200

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			symbol := fmt.Sprintf("SYM%d", idx)
			for j := 0; j < updates; j++ {
				hub.Publish(UpdateStock, symbol, float64(j), nil)
			}
		}(i)
	}
	wg.Wait()

	m := hub.Metrics()
	assert.Equal(t, uint64(publishers*updates), m.Published)
	assert.Equal(t, uint64(publishers*updates), m.Delivered+m.Dropped)
}

func TestPublishDuringSubscriberChurn(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				hub.Publish(UpdateCurrency, "USD", 32.50, nil)
			}
		}
	}()

	// Clients connecting and disconnecting must never crash a publish.
	for i := 0; i < 500; i++ {
		ch := hub.Subscribe(TopicPrices)
		hub.Unsubscribe(TopicPrices, ch)
	}

	close(done)
	wg.Wait()
	assert.Equal(t, 0, hub.SubscriberCount(TopicPrices))
}

func TestUnsubscribe_ClosesChannelAndPrunesTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ch := hub.Subscribe(TopicPrices)
	require.Equal(t, 1, hub.SubscriberCount(TopicPrices))

	hub.Unsubscribe(TopicPrices, ch)
	assert.Equal(t, 0, hub.SubscriberCount(TopicPrices))

	_, open := <-ch
	assert.False(t, open)
}
