package events

import "context"

// Event types
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderExecuted      = "order_executed"
	EventOrderCancelled     = "order_cancelled"
	EventOrderExpired       = "order_expired"
)

// StreamOrders is the channel all order events are published to.
const StreamOrders = "events:order"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Parties returns the identities an event concerns, used to route it to websocket clients.
func (e Event) Parties() []string {
	var out []string
	for _, k := range []string{"depositor", "keeper"} {
		if v, ok := e.Payload[k].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
