package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFlattensPayload(t *testing.T) {
	msg := Message{
		Type:      TypeLogCreate,
		Payload:   map[string]any{"log": map[string]any{"id": 7}},
		Timestamp: "2026-08-30T12:00:00.000Z",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))

	assert.Equal(t, "LOG_CREATE", obj["type"])
	assert.Equal(t, "2026-08-30T12:00:00.000Z", obj["timestamp"])
	// Payload fields live at the top level, not under a "payload" key.
	assert.NotContains(t, obj, "payload")
	log, ok := obj["log"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), log["id"])
}

func TestMarshalPayloadCannotShadowEnvelope(t *testing.T) {
	msg := Message{
		Type:      TypePing,
		Payload:   map[string]any{"type": "SPOOFED", "timestamp": "bogus"},
		Timestamp: "2026-08-30T12:00:00.000Z",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "PING", obj["type"])
	assert.Equal(t, "2026-08-30T12:00:00.000Z", obj["timestamp"])
}

func TestDecodeRoundTrip(t *testing.T) {
	original := New(TypeLogUpdate, map[string]any{"id": 3.0, "mood": "good"})

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Timestamp, decoded.Timestamp)
	assert.Equal(t, "good", decoded.Payload["mood"])
	assert.Equal(t, 3.0, decoded.Payload["id"])
}

func TestDecodeUnknownTypeIsAccepted(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"FUTURE_THING","timestamp":"2026-01-01T00:00:00.000Z","x":1}`))
	require.NoError(t, err)

	assert.Equal(t, Type("FUTURE_THING"), msg.Type)
	assert.False(t, msg.Type.Known())
	assert.Equal(t, float64(1), msg.Payload["x"])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	assert.Error(t, err)
}

func TestKnownTypes(t *testing.T) {
	for _, typ := range []Type{
		TypeConnectionSuccess, TypeConnectionError,
		TypeLogCreate, TypeLogUpdate, TypeLogDelete, TypeAnalyticsUpdate,
		TypePing, TypePong, TypeError,
	} {
		assert.True(t, typ.Known(), string(typ))
	}
	assert.False(t, Type("WHATEVER").Known())
}

func TestDedupKey(t *testing.T) {
	a := Message{Type: TypeLogCreate, Timestamp: "2026-08-30T12:00:00.000Z"}
	b := Message{Type: TypeLogCreate, Timestamp: "2026-08-30T12:00:00.000Z"}
	c := Message{Type: TypeLogDelete, Timestamp: "2026-08-30T12:00:00.000Z"}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}
