package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEventParties(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    int
	}{
		{"both", map[string]any{"depositor": "D", "keeper": "K"}, 2},
		{"keeper only", map[string]any{"keeper": "K"}, 1},
		{"empty strings", map[string]any{"depositor": "", "keeper": ""}, 0},
		{"wrong type", map[string]any{"depositor": 42}, 0},
		{"nil payload", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Event{Type: EventOrderCreated, Payload: tt.payload}.Parties()
			if len(got) != tt.want {
				t.Errorf("Parties() = %v, want %d entries", got, tt.want)
			}
		})
	}
}

func TestLocalBroker(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Event, 1)
	if err := b.Subscribe(ctx, StreamOrders, func(e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "events:other", Event{Type: "ignored"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), StreamOrders, Event{Type: EventOrderCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-got:
		if e.Type != EventOrderCreated {
			t.Errorf("received %q, want %q", e.Type, EventOrderCreated)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.mu.RLock()
		n := len(b.handlers[StreamOrders])
		b.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("handler not removed after cancel")
}

func TestRedisSubscriberDeliverSurvivesPanics(t *testing.T) {
	s := NewRedisSubscriber(nil, zap.NewNop())

	var got []string
	s.deliver(StreamOrders, `{"type":"order_created","payload":{}}`, func(e Event) {
		got = append(got, e.Type)
		panic("boom")
	})
	s.deliver(StreamOrders, `not json`, func(e Event) {
		got = append(got, "unexpected")
	})
	s.deliver(StreamOrders, `{"type":"order_cancelled"}`, func(e Event) {
		got = append(got, e.Type)
	})

	if len(got) != 2 || got[0] != "order_created" || got[1] != "order_cancelled" {
		t.Fatalf("delivered %v", got)
	}
}
