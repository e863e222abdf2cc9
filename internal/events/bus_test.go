package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argushq/argus/internal/testutil"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var got []Event
	unsub := bus.Subscribe(TypeTaskCompleted, func(evt Event) {
		got = append(got, evt)
	})

	bus.Publish(TypeTaskCompleted, "payload-1")
	bus.Publish(TypeTaskFailed, "other")
	require.Len(t, got, 1)
	require.Equal(t, TypeTaskCompleted, got[0].Type)
	require.Equal(t, "payload-1", got[0].Payload)
	require.False(t, got[0].Timestamp.IsZero())

	unsub()
	bus.Publish(TypeTaskCompleted, "payload-2")
	require.Len(t, got, 1)
}

func TestBus_SubscribeAllSeesEveryType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var types []Type
	unsub := bus.SubscribeAll(func(evt Event) {
		types = append(types, evt.Type)
	})
	defer unsub()

	bus.Publish(TypeResultCollected, nil)
	bus.Publish(TypeModeSwitched, nil)
	bus.Publish(TypeAlertRaised, nil)

	require.Equal(t, []Type{TypeResultCollected, TypeModeSwitched, TypeAlertRaised}, types)
}

func TestBus_MultipleSubscribersForOneType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	first, second := 0, 0
	defer bus.Subscribe(TypeRuleFired, func(Event) { first++ })()
	defer bus.Subscribe(TypeRuleFired, func(Event) { second++ })()

	bus.Publish(TypeRuleFired, nil)
	bus.Publish(TypeRuleFired, nil)

	require.Equal(t, 2, first)
	require.Equal(t, 2, second)
}

func TestNATSBridge_MirrorsEventsToJetStream(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	logger := zaptest.NewLogger(t)
	bus := NewBus(logger)

	bridge, err := NewNATSBridge(js, bus, logger)
	require.NoError(t, err)
	defer bridge.Close()

	sub, err := js.SubscribeSync("argus.task.completed")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	bus.Publish(TypeTaskCompleted, map[string]string{"task_id": "t-1"})

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var evt struct {
		Type    Type                   `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	require.Equal(t, TypeTaskCompleted, evt.Type)
	require.Equal(t, "t-1", evt.Payload["task_id"])
}

func TestNATSBridge_CloseStopsForwarding(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	logger := zaptest.NewLogger(t)
	bus := NewBus(logger)

	bridge, err := NewNATSBridge(js, bus, logger)
	require.NoError(t, err)
	bridge.Close()

	bus.Publish(TypeAlertRaised, "late")

	info, err := js.StreamInfo("ARGUS_EVENTS")
	require.NoError(t, err)
	require.Zero(t, info.State.Msgs)
}
