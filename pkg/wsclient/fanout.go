package wsclient

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// Subscriber is one interested party inside the client process. All
// callbacks are optional and are invoked synchronously from the manager's
// message-received flow, in subscription order.
type Subscriber struct {
	OnMessage          func(protocol.Message)
	OnConnectionChange func(connected bool)
	OnError            func(err error)
}

// SubscriptionID identifies a registered subscriber.
type SubscriptionID string

// fanout redistributes inbound messages to every subscriber, suppressing
// short-window duplicates and replicating the derived connection signals.
type fanout struct {
	mu     sync.Mutex
	subs   map[SubscriptionID]Subscriber
	order  []SubscriptionID
	recent map[string]time.Time
	window time.Duration

	connected   bool
	lastMessage *protocol.Message
	lastError   error

	// onEmpty runs after the last subscriber leaves.
	onEmpty func()

	logger zerolog.Logger
}

func newFanout(window time.Duration, logger zerolog.Logger) *fanout {
	return &fanout{
		subs:   make(map[SubscriptionID]Subscriber),
		recent: make(map[string]time.Time),
		window: window,
		logger: logger.With().Str("component", "fanout").Logger(),
	}
}

func (f *fanout) subscribe(sub Subscriber) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	f.mu.Lock()
	f.subs[id] = sub
	f.order = append(f.order, id)
	connected := f.connected
	lastMessage := f.lastMessage
	lastError := f.lastError
	f.mu.Unlock()

	// Late subscribers see the current state immediately.
	if sub.OnConnectionChange != nil {
		sub.OnConnectionChange(connected)
	}
	if lastMessage != nil && sub.OnMessage != nil {
		sub.OnMessage(*lastMessage)
	}
	if lastError != nil && sub.OnError != nil {
		sub.OnError(lastError)
	}

	return id
}

// unsubscribe removes a subscriber and reports whether it was the last
// one. The caller is notified through onEmpty so it can tear down the
// physical connection.
func (f *fanout) unsubscribe(id SubscriptionID) {
	f.mu.Lock()
	if _, ok := f.subs[id]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.subs, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	empty := len(f.subs) == 0
	if empty {
		f.connected = false
		f.lastMessage = nil
		f.lastError = nil
	}
	f.mu.Unlock()

	if empty && f.onEmpty != nil {
		f.onEmpty()
	}
}

// dispatch hands one inbound message to every subscriber. Duplicate
// (type, timestamp) pairs inside the dedup window are discarded silently.
func (f *fanout) dispatch(msg protocol.Message) {
	f.mu.Lock()

	now := time.Now()
	for key, expiry := range f.recent {
		if now.After(expiry) {
			delete(f.recent, key)
		}
	}

	key := msg.DedupKey()
	if expiry, seen := f.recent[key]; seen && now.Before(expiry) {
		f.mu.Unlock()
		return
	}
	f.recent[key] = now.Add(f.window)

	f.lastMessage = &msg

	connChanged := false
	errChanged := false
	switch msg.Type {
	case protocol.TypeConnectionSuccess:
		connChanged = !f.connected
		f.connected = true
		errChanged = f.lastError != nil
		f.lastError = nil
	case protocol.TypePong:
		connChanged = !f.connected
		f.connected = true
	case protocol.TypeConnectionError, protocol.TypeError:
		f.lastError = errorFromPayload(msg)
		errChanged = true
	}
	connected := f.connected
	lastError := f.lastError
	subs := f.snapshotLocked()
	f.mu.Unlock()

	for _, sub := range subs {
		if sub.OnMessage != nil {
			sub.OnMessage(msg)
		}
		if connChanged && sub.OnConnectionChange != nil {
			sub.OnConnectionChange(connected)
		}
		if errChanged && sub.OnError != nil {
			sub.OnError(lastError)
		}
	}
}

// setConnected updates the derived connection signal outside of message
// flow (socket closed, teardown).
func (f *fanout) setConnected(connected bool) {
	f.mu.Lock()
	changed := f.connected != connected
	f.connected = connected
	subs := f.snapshotLocked()
	f.mu.Unlock()

	if !changed {
		return
	}
	for _, sub := range subs {
		if sub.OnConnectionChange != nil {
			sub.OnConnectionChange(connected)
		}
	}
}

func (f *fanout) snapshotLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(f.order))
	for _, id := range f.order {
		subs = append(subs, f.subs[id])
	}
	return subs
}

func (f *fanout) snapshotState() (bool, *protocol.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, f.lastMessage, f.lastError
}

func (f *fanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func errorFromPayload(msg protocol.Message) error {
	if text, ok := msg.Payload["message"].(string); ok && text != "" {
		return errors.New(text)
	}
	return errors.New("connection error")
}
