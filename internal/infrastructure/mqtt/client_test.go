package mqtt

import (
	"context"
	"errors"
	"testing"
)

// These tests exercise validation and topic construction without a broker.
// Round-trip behaviour against a live Mosquitto instance is covered by the
// integration tests (go test -tags=integration).

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "PollGet",
			builder: func() string {
				return Topics{}.PollGet("weather-station")
			},
			expected: "homepulse/poll/weather-station/get",
		},
		{
			name: "PollData",
			builder: func() string {
				return Topics{}.PollData("weather-station", "req-abc123")
			},
			expected: "homepulse/poll/weather-station/data/req-abc123",
		},
		{
			name: "PollDataPattern",
			builder: func() string {
				return Topics{}.PollDataPattern("weather-station")
			},
			expected: "homepulse/poll/weather-station/data/+",
		},
		{
			name: "Push",
			builder: func() string {
				return Topics{}.Push("doorbell")
			},
			expected: "homepulse/push/doorbell",
		},
		{
			name: "EntityState",
			builder: func() string {
				return Topics{}.EntityState("outdoor-temperature")
			},
			expected: "homepulse/entity/outdoor-temperature/state",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "homepulse/system/status",
		},
		{
			name: "AllPushes",
			builder: func() string {
				return Topics{}.AllPushes()
			},
			expected: "homepulse/push/+",
		},
		{
			name: "AllEntityStates",
			builder: func() string {
				return Topics{}.AllEntityStates()
			},
			expected: "homepulse/entity/+/state",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "homepulse/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Publish("homepulse/test", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("homepulse/test", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("homepulse/test", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if client.HasSubscription("homepulse/push/doorbell") {
		t.Error("HasSubscription() = true for untracked topic, want false")
	}
}
