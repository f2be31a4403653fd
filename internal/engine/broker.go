package engine

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// Event is a status change of one execution.
type Event struct {
	ExecutionID  string                `json:"executionId"`
	Status       model.ExecutionStatus `json:"status"`
	Time         time.Time             `json:"time"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
}

// EventBroker fans out execution status events to subscribers. It is safe
// for concurrent use.
//
// Closed topics are remembered for the retention window so that late
// subscribers receive a closed channel instead of blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	closed *expirable.LRU[string, struct{}]
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
}

// NewEventBroker creates a broker remembering up to size closed topics for ttl.
func NewEventBroker(size int, ttl time.Duration) *EventBroker {
	if size <= 0 {
		size = DefaultRetainedExecutions
	}
	return &EventBroker{
		topics: make(map[string]*eventTopic),
		closed: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Subscribe returns a channel receiving events for the execution and an
// unsubscribe function. If the execution already finished the channel is
// closed immediately.
func (b *EventBroker) Subscribe(executionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if b.closed.Contains(executionID) {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[executionID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[executionID] = t
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to all subscribers of its execution. Events are dropped
// for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.ExecutionID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the stream for the execution. Subscriber channels are closed and
// later Subscribe calls return a closed channel.
func (b *EventBroker) Close(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[executionID]; ok {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, executionID)
	}
	b.closed.Add(executionID, struct{}{})
}
