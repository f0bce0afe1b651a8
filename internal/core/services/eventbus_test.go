package services

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_PubSub(t *testing.T) {
	bus := NewEventBus(testLogger())

	topic := "campaign-123"
	ch, unsub := bus.Subscribe(topic)
	defer unsub()

	event := Event{
		Topic:     topic,
		Type:      EventTypeStatus,
		Data:      "test-data",
		Timestamp: time.Now().Unix(),
	}
	bus.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.Topic, received.Topic)
		assert.Equal(t, event.Data, received.Data)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(testLogger())

	ch, unsub := bus.Subscribe("bot-1")
	unsub()

	bus.Publish(Event{Topic: "bot-1", Type: EventTypeLog, Data: "should not receive"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(testLogger())
	topic := "task-multi"

	ch1, unsub1 := bus.Subscribe(topic)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(topic)
	defer unsub2()

	bus.Publish(Event{Topic: topic, Data: "broadcast"})

	timeout := time.After(1 * time.Second)
	got1, got2 := false, false
	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			got1 = true
		case <-ch2:
			got2 = true
		case <-timeout:
			t.Fatal("timeout")
		}
	}

	assert.True(t, got1)
	assert.True(t, got2)
}

func TestEventBus_GlobalReceivesEveryTopic(t *testing.T) {
	bus := NewEventBus(testLogger())

	global, unsub := bus.SubscribeGlobal()
	defer unsub()

	bus.Publish(Event{Topic: "a"})
	bus.Publish(Event{Topic: "b"})

	var topics []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-global:
			topics = append(topics, e.Topic)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	assert.Equal(t, []string{"a", "b"}, topics)
}

func TestEventBus_FullChannelDropsWithoutBlocking(t *testing.T) {
	bus := NewEventBus(testLogger())

	ch, unsub := bus.Subscribe("busy")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			bus.Publish(Event{Topic: "busy"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, cap(ch))
}

func TestEventBus_PublishDomain(t *testing.T) {
	bus := NewEventBus(testLogger())

	bot := domain.NewBot()
	require.NoError(t, bot.MarkReady())

	ch, unsub := bus.Subscribe(string(bot.ID()))
	defer unsub()

	bus.PublishDomain(bot.PullEvents()...)

	select {
	case e := <-ch:
		assert.Equal(t, domain.EventBotInitialized, e.Kind)
		assert.Equal(t, EventTypeStatus, e.Type)

		var payload domain.Event
		require.NoError(t, json.Unmarshal([]byte(e.Data), &payload))
		assert.Equal(t, string(domain.BotStatusIdle), payload.Status)
		assert.Equal(t, string(bot.ID()), payload.BotID)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}
