package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nwalden/homepulse-core/internal/coordinator"
	"github.com/nwalden/homepulse-core/internal/infrastructure/mqtt"
)

// fakeBroker is an in-process Broker that lets tests deliver messages to
// subscribed handlers and observe publishes.
type fakeBroker struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []publishedMsg
	unsubscribed []string

	// onPublish, when set, is invoked synchronously for every publish so a
	// test can play the bridge side of a poll round trip.
	onPublish func(topic string, payload []byte)
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload})
	onPublish := b.onPublish
	b.mu.Unlock()

	if onPublish != nil {
		onPublish(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	b.unsubscribed = append(b.unsubscribed, topic)
	return nil
}

// deliver hands a message to the handler registered under pattern.
func (b *fakeBroker) deliver(t *testing.T, pattern, topic string, payload []byte) error {
	t.Helper()
	b.mu.Lock()
	handler, ok := b.handlers[pattern]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no handler registered for pattern %s", pattern)
	}
	return handler(topic, payload)
}

// answerPolls wires the fake broker to answer every poll request with the
// given responder, mimicking a live bridge.
func (b *fakeBroker) answerPolls(t *testing.T, sourceID string, respond func(requestID string) pollResponse) {
	t.Helper()
	pattern := mqtt.Topics{}.PollDataPattern(sourceID)
	b.onPublish = func(topic string, payload []byte) {
		if topic != (mqtt.Topics{}.PollGet(sourceID)) {
			return
		}
		var req pollRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			t.Errorf("malformed poll request: %v", err)
			return
		}
		resp := respond(req.RequestID)
		respPayload, _ := json.Marshal(resp)
		respTopic := mqtt.Topics{}.PollData(sourceID, req.RequestID)
		b.deliver(t, pattern, respTopic, respPayload)
	}
}

func TestPollSource_FetchSuccess(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	broker.answerPolls(t, "weather-station", func(requestID string) pollResponse {
		return pollResponse{
			RequestID: requestID,
			Data:      map[string]any{"temperature": 21.5, "humidity": 40.0},
		}
	})

	data, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if data["temperature"] != 21.5 {
		t.Errorf("Fetch() data = %v, want temperature 21.5", data)
	}
}

func TestPollSource_FetchBeforeStart(t *testing.T) {
	src := NewPollSource(newFakeBroker(), "weather-station", 1)

	_, err := src.Fetch(context.Background())
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("Fetch() error = %v, want ErrNotStarted", err)
	}
}

func TestPollSource_StartTwice(t *testing.T) {
	src := NewPollSource(newFakeBroker(), "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	if err := src.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestPollSource_FetchTimeout(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	// No responder: the bridge stays silent.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Fetch(ctx)
	var updateErr *coordinator.UpdateFailedError
	if !errors.As(err, &updateErr) {
		t.Fatalf("Fetch() error = %v, want UpdateFailedError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error should wrap context.DeadlineExceeded, got %v", err)
	}
}

func TestPollSource_BridgeError(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "doorbell", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	broker.answerPolls(t, "doorbell", func(requestID string) pollResponse {
		return pollResponse{RequestID: requestID, Error: "device offline"}
	})

	_, err := src.Fetch(context.Background())
	var updateErr *coordinator.UpdateFailedError
	if !errors.As(err, &updateErr) {
		t.Fatalf("Fetch() error = %v, want UpdateFailedError", err)
	}
}

func TestPollSource_AuthFailed(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "thermostat", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	broker.answerPolls(t, "thermostat", func(requestID string) pollResponse {
		return pollResponse{RequestID: requestID, Error: "token expired", Code: CodeAuthFailed}
	})

	_, err := src.Fetch(context.Background())
	var authErr *coordinator.AuthFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("Fetch() error = %v, want AuthFailedError", err)
	}
}

func TestPollSource_EmptyResponse(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "meter", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	broker.answerPolls(t, "meter", func(requestID string) pollResponse {
		return pollResponse{RequestID: requestID}
	})

	_, err := src.Fetch(context.Background())
	var updateErr *coordinator.UpdateFailedError
	if !errors.As(err, &updateErr) {
		t.Fatalf("Fetch() error = %v, want UpdateFailedError for empty response", err)
	}
}

func TestPollSource_LateResponseDropped(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	// A response for a request nobody is waiting on must be ignored.
	pattern := mqtt.Topics{}.PollDataPattern("weather-station")
	topic := mqtt.Topics{}.PollData("weather-station", "req-stale")
	payload, _ := json.Marshal(pollResponse{RequestID: "req-stale", Data: map[string]any{"old": true}})

	if err := broker.deliver(t, pattern, topic, payload); err != nil {
		t.Errorf("late response should be dropped, got error %v", err)
	}
}

func TestPollSource_CloseUnsubscribes(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	pattern := mqtt.Topics{}.PollDataPattern("weather-station")
	if len(broker.unsubscribed) != 1 || broker.unsubscribed[0] != pattern {
		t.Errorf("Close() unsubscribed %v, want [%s]", broker.unsubscribed, pattern)
	}

	// Closing again is a no-op.
	if err := src.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestPollSource_DrivesCoordinator(t *testing.T) {
	broker := newFakeBroker()
	src := NewPollSource(broker, "weather-station", 1)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	broker.answerPolls(t, "weather-station", func(requestID string) pollResponse {
		return pollResponse{RequestID: requestID, Data: map[string]any{"temperature": 18.0}}
	})

	coord, err := coordinator.New(coordinator.Config[map[string]any]{
		Name:   "weather-station",
		Update: src.UpdateFunc(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer coord.Shutdown()

	if err := coord.FirstRefresh(context.Background()); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}
	if coord.Data()["temperature"] != 18.0 {
		t.Errorf("coordinator data = %v, want temperature 18", coord.Data())
	}
}

// fakeSink records injected payloads for push tests.
type fakeSink struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (s *fakeSink) SetUpdatedData(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, data)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestPushSource_InjectsData(t *testing.T) {
	broker := newFakeBroker()
	sink := &fakeSink{}
	src := NewPushSource(broker, "doorbell", 1, sink)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	topic := mqtt.Topics{}.Push("doorbell")
	if err := broker.deliver(t, topic, topic, []byte(`{"pressed":true}`)); err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("sink received %d payloads, want 1", sink.count())
	}
	if sink.payloads[0]["pressed"] != true {
		t.Errorf("sink payload = %v, want pressed=true", sink.payloads[0])
	}
}

func TestPushSource_MalformedPayload(t *testing.T) {
	broker := newFakeBroker()
	sink := &fakeSink{}
	src := NewPushSource(broker, "doorbell", 1, sink)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	topic := mqtt.Topics{}.Push("doorbell")
	if err := broker.deliver(t, topic, topic, []byte(`not json`)); err == nil {
		t.Error("deliver should report decode error for malformed payload")
	}

	if sink.count() != 0 {
		t.Errorf("sink received %d payloads, want 0", sink.count())
	}
}

func TestPushSource_FeedsCoordinator(t *testing.T) {
	broker := newFakeBroker()

	// Push-only coordinator: the update function must never run.
	coord, err := coordinator.New(coordinator.Config[map[string]any]{
		Name: "doorbell",
		Update: func(context.Context) (map[string]any, error) {
			return nil, fmt.Errorf("push-only source must not poll")
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer coord.Shutdown()

	src := NewPushSource(broker, "doorbell", 1, coord)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Close()

	notified := make(chan struct{}, 1)
	coord.AddListener(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	}, nil)

	topic := mqtt.Topics{}.Push("doorbell")
	if err := broker.deliver(t, topic, topic, []byte(`{"pressed":true,"battery":87}`)); err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("listener not notified after push")
	}

	if !coord.LastUpdateSuccess() {
		t.Error("LastUpdateSuccess() = false after push, want true")
	}
	if coord.Data()["pressed"] != true {
		t.Errorf("coordinator data = %v, want pressed=true", coord.Data())
	}
}
