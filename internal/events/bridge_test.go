package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

type capture struct {
	msgType protocol.Type
	payload map[string]any
	owner   *int64
}

type captureBroadcaster struct {
	calls []capture
}

func (c *captureBroadcaster) Broadcast(msgType protocol.Type, payload map[string]any, owner *int64) int {
	c.calls = append(c.calls, capture{msgType: msgType, payload: payload, owner: owner})
	return 1
}

func newTestBridge() (*Bridge, *captureBroadcaster) {
	bc := &captureBroadcaster{}
	return &Bridge{broadcaster: bc, logger: zerolog.Nop()}, bc
}

func TestHandleEventOwnerScoped(t *testing.T) {
	b, bc := newTestBridge()

	b.HandleEvent(protocol.TypeLogCreate, []byte(`{"ownerId":42,"payload":{"log":{"id":7,"mood":4}}}`))

	require.Len(t, bc.calls, 1)
	call := bc.calls[0]
	assert.Equal(t, protocol.TypeLogCreate, call.msgType)
	require.NotNil(t, call.owner)
	assert.Equal(t, int64(42), *call.owner)

	log, ok := call.payload["log"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), log["id"])
}

func TestHandleEventWithoutOwnerBroadcastsToEveryone(t *testing.T) {
	b, bc := newTestBridge()

	b.HandleEvent(protocol.TypeAnalyticsUpdate, []byte(`{"payload":{"summary":{"entries":12}}}`))

	require.Len(t, bc.calls, 1)
	assert.Nil(t, bc.calls[0].owner)
	assert.Equal(t, protocol.TypeAnalyticsUpdate, bc.calls[0].msgType)
}

func TestHandleEventDropsUndecodableEnvelope(t *testing.T) {
	b, bc := newTestBridge()

	b.HandleEvent(protocol.TypeLogDelete, []byte("not json at all"))
	b.HandleEvent(protocol.TypeLogDelete, []byte(`{"ownerId":"not-a-number"}`))

	assert.Empty(t, bc.calls)
}

func TestSubjectCoverage(t *testing.T) {
	expected := map[string]protocol.Type{
		"tracker.events.log.created": protocol.TypeLogCreate,
		"tracker.events.log.updated": protocol.TypeLogUpdate,
		"tracker.events.log.deleted": protocol.TypeLogDelete,
		"tracker.events.analytics":   protocol.TypeAnalyticsUpdate,
	}
	assert.Equal(t, expected, subjectTypes)
}
