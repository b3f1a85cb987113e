// Package protocol defines the wire envelope exchanged over the realtime
// channel. Both the server and the client library speak this format.
package protocol

import (
	"encoding/json"
	"time"
)

// Type identifies a message on the wire.
type Type string

const (
	TypeConnectionSuccess Type = "CONNECTION_SUCCESS"
	TypeConnectionError   Type = "CONNECTION_ERROR"
	TypeLogCreate         Type = "LOG_CREATE"
	TypeLogUpdate         Type = "LOG_UPDATE"
	TypeLogDelete         Type = "LOG_DELETE"
	TypeAnalyticsUpdate   Type = "ANALYTICS_UPDATE"
	TypePing              Type = "PING"
	TypePong              Type = "PONG"
	TypeError             Type = "ERROR"
)

// Known reports whether t is part of the closed enumeration. Unknown types
// still decode; receivers ignore them for forward compatibility.
func (t Type) Known() bool {
	switch t {
	case TypeConnectionSuccess, TypeConnectionError,
		TypeLogCreate, TypeLogUpdate, TypeLogDelete, TypeAnalyticsUpdate,
		TypePing, TypePong, TypeError:
		return true
	}
	return false
}

// Timestamps use millisecond precision, matching JavaScript's toISOString.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Message is the envelope carried in both directions:
//
//	{ "type": "...", ...payload fields..., "timestamp": "..." }
//
// Payload fields are flattened into the top-level object on the wire.
type Message struct {
	Type      Type
	Payload   map[string]any
	Timestamp string
}

// New builds a message of the given type with the send-time timestamp.
func New(t Type, payload map[string]any) Message {
	return Message{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(timestampFormat),
	}
}

// DedupKey identifies a message for short-window duplicate suppression.
func (m Message) DedupKey() string {
	return string(m.Type) + "-" + m.Timestamp
}

func (m Message) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Payload)+2)
	for k, v := range m.Payload {
		if k == "type" || k == "timestamp" {
			continue
		}
		obj[k] = v
	}
	obj["type"] = m.Type
	obj["timestamp"] = m.Timestamp
	return json.Marshal(obj)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if t, ok := obj["type"].(string); ok {
		m.Type = Type(t)
	}
	if ts, ok := obj["timestamp"].(string); ok {
		m.Timestamp = ts
	}
	delete(obj, "type")
	delete(obj, "timestamp")
	m.Payload = obj
	return nil
}

// Encode serializes a message to its wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a raw frame into a message. The type may be empty or
// unknown; callers decide what to do with unrecognized messages.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
