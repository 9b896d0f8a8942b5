package source

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nwalden/homepulse-core/internal/infrastructure/mqtt"
)

// DataSink receives pushed payloads. Satisfied by
// *coordinator.Coordinator[map[string]any] via SetUpdatedData.
type DataSink interface {
	SetUpdatedData(data map[string]any)
}

// PushSource injects bridge-volunteered data into a coordinator.
//
// It subscribes to homepulse/push/{source} and forwards every decoded
// payload through SetUpdatedData. The coordinator treats each push as a
// successful refresh: failure bookkeeping resets and listeners fan out.
type PushSource struct {
	broker   Broker
	sourceID string
	qos      byte
	sink     DataSink

	mu      sync.Mutex
	started bool
}

// NewPushSource creates a push source feeding the given sink.
func NewPushSource(broker Broker, sourceID string, qos byte, sink DataSink) *PushSource {
	return &PushSource{
		broker:   broker,
		sourceID: sourceID,
		qos:      qos,
		sink:     sink,
	}
}

// Start subscribes to the source's push topic.
func (s *PushSource) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	topic := mqtt.Topics{}.Push(s.sourceID)
	if err := s.broker.Subscribe(topic, s.qos, s.handlePush); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("subscribing to pushes for %s: %w", s.sourceID, err)
	}

	return nil
}

// Close unsubscribes from the push topic.
func (s *PushSource) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	topic := mqtt.Topics{}.Push(s.sourceID)
	if err := s.broker.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing pushes for %s: %w", s.sourceID, err)
	}

	return nil
}

// handlePush decodes one pushed payload and hands it to the sink.
// Malformed payloads are reported upward for the transport to log.
func (s *PushSource) handlePush(topic string, payload []byte) error {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("decoding push payload on %s: %w", topic, err)
	}

	s.sink.SetUpdatedData(data)
	return nil
}
