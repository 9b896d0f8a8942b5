package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nwalden/homepulse-core/internal/coordinator"
	"github.com/nwalden/homepulse-core/internal/infrastructure/mqtt"
)

// Broker is the MQTT surface sources need. Satisfied by *mqtt.Client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// pollRequest is the JSON payload published to homepulse/poll/{source}/get.
type pollRequest struct {
	RequestID string `json:"request_id"`
}

// pollResponse is the JSON payload a bridge answers with.
// Either Data is set, or Error (optionally with a Code) describes the failure.
type pollResponse struct {
	RequestID string         `json:"request_id"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
}

// Error codes a bridge may report in a poll response.
const (
	// CodeAuthFailed marks credential rejection; the coordinator escalates
	// it to its OnAuthFailed hook instead of retrying silently.
	CodeAuthFailed = "auth_failed"
)

// PollSource fetches data from a bridge via MQTT request/response.
//
// Each fetch publishes a poll request carrying a fresh request ID and waits
// for the matching response on the source's data topic. Responses for
// unknown request IDs (late answers to timed-out polls) are dropped.
//
// Thread Safety:
//   - Fetch is safe for concurrent use, though the owning coordinator
//     already serialises fetches.
type PollSource struct {
	broker   Broker
	sourceID string
	qos      byte

	mu      sync.Mutex
	pending map[string]chan pollResponse
	started bool
}

// NewPollSource creates a poll source for one bridge data source.
func NewPollSource(broker Broker, sourceID string, qos byte) *PollSource {
	return &PollSource{
		broker:   broker,
		sourceID: sourceID,
		qos:      qos,
		pending:  make(map[string]chan pollResponse),
	}
}

// Start subscribes to the source's poll response topic. Must be called
// once before the first fetch.
func (s *PollSource) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	pattern := mqtt.Topics{}.PollDataPattern(s.sourceID)
	if err := s.broker.Subscribe(pattern, s.qos, s.handleResponse); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("subscribing to poll responses for %s: %w", s.sourceID, err)
	}

	return nil
}

// Close unsubscribes from the response topic. Pending fetches time out
// through their contexts.
func (s *PollSource) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	pattern := mqtt.Topics{}.PollDataPattern(s.sourceID)
	if err := s.broker.Unsubscribe(pattern); err != nil {
		return fmt.Errorf("unsubscribing poll responses for %s: %w", s.sourceID, err)
	}

	return nil
}

// UpdateFunc adapts the source for coordinator construction.
func (s *PollSource) UpdateFunc() coordinator.UpdateFunc[map[string]any] {
	return s.Fetch
}

// Fetch performs one poll round trip: publish a request, wait for the
// matching response or context expiry.
//
// Failure mapping:
//   - timeout / cancelled context: UpdateFailedError
//   - bridge error payload: UpdateFailedError
//   - bridge auth_failed payload: AuthFailedError
func (s *PollSource) Fetch(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}

	requestID := "req-" + uuid.NewString()[:8]
	respCh := make(chan pollResponse, 1)
	s.pending[requestID] = respCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(pollRequest{RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("marshalling poll request: %w", err)
	}

	topic := mqtt.Topics{}.PollGet(s.sourceID)
	if err := s.broker.Publish(topic, payload, s.qos, false); err != nil {
		return nil, coordinator.NewUpdateFailed(
			fmt.Sprintf("publishing poll request for %s", s.sourceID), err)
	}

	select {
	case resp := <-respCh:
		return s.decodeResponse(resp)
	case <-ctx.Done():
		return nil, coordinator.NewUpdateFailed(
			fmt.Sprintf("polling %s timed out", s.sourceID), ctx.Err())
	}
}

// decodeResponse maps a bridge response to data or a typed failure.
func (s *PollSource) decodeResponse(resp pollResponse) (map[string]any, error) {
	if resp.Error != "" {
		if resp.Code == CodeAuthFailed {
			return nil, coordinator.NewAuthFailed(
				fmt.Sprintf("bridge rejected credentials for %s: %s", s.sourceID, resp.Error), nil)
		}
		return nil, coordinator.NewUpdateFailed(
			fmt.Sprintf("bridge error for %s: %s", s.sourceID, resp.Error), nil)
	}
	if resp.Data == nil {
		return nil, coordinator.NewUpdateFailed(
			fmt.Sprintf("bridge response for %s carried no data", s.sourceID), nil)
	}
	return resp.Data, nil
}

// handleResponse routes an incoming poll response to its waiting fetch.
// Late responses for forgotten request IDs are dropped silently.
func (s *PollSource) handleResponse(topic string, payload []byte) error {
	requestID := topic[strings.LastIndex(topic, "/")+1:]

	var resp pollResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding poll response on %s: %w", topic, err)
	}
	if resp.RequestID == "" {
		resp.RequestID = requestID
	}

	s.mu.Lock()
	ch, ok := s.pending[resp.RequestID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case ch <- resp:
	default:
	}
	return nil
}
