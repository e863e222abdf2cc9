package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	eventStreamName    = "ARGUS_EVENTS"
	eventSubjectPrefix = "argus."
)

// NATSBridge forwards bus events to JetStream subjects
// (argus.result.collected, argus.task.failed, ...)
type NATSBridge struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	unsub  func()
}

// NewNATSBridge creates the event stream if needed and starts mirroring
// every bus event onto JetStream
func NewNATSBridge(js nats.JetStreamContext, bus *Bus, logger *zap.Logger) (*NATSBridge, error) {
	_, err := js.StreamInfo(eventStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:     eventStreamName,
			Subjects: []string{eventSubjectPrefix + ">"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  -1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		logger.Info("Created event stream", zap.String("name", eventStreamName))
	}

	bridge := &NATSBridge{
		logger: logger.Named("nats-bridge"),
		js:     js,
	}
	bridge.unsub = bus.SubscribeAll(bridge.forward)

	return bridge, nil
}

// Close detaches the bridge from the bus
func (b *NATSBridge) Close() {
	if b.unsub != nil {
		b.unsub()
	}
}

func (b *NATSBridge) forward(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("Failed to marshal event",
			zap.String("type", string(evt.Type)),
			zap.Error(err))
		return
	}

	if _, err := b.js.Publish(eventSubjectPrefix+string(evt.Type), data); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("type", string(evt.Type)),
			zap.Error(err))
	}
}
