package entity

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nwalden/homepulse-core/internal/infrastructure/mqtt"
)

// Publisher is the MQTT surface entities need for state publication.
// Satisfied by *mqtt.Client.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Metrics receives numeric sensor readings for time-series storage.
// Satisfied by *influxdb.Client.
type Metrics interface {
	WriteEntityValue(entityID, source string, value float64)
}

// Logger is the minimal logging interface entities use.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// State is the JSON document a sensor publishes on its state topic.
type State struct {
	EntityID  string    `json:"entity_id"`
	Source    string    `json:"source"`
	Value     any       `json:"value"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SensorConfig holds construction parameters for a Sensor.
type SensorConfig struct {
	// ID is the unique entity identifier used in the state topic.
	ID string

	// Key selects which payload field the sensor publishes.
	// Empty publishes the whole payload.
	Key string

	// Source is the coordinator the sensor subscribes to.
	Source Source

	// Publisher sends retained state documents. Required.
	Publisher Publisher

	// Grace is how long the source may keep failing before the sensor
	// reports unavailable. 0 means unavailable on the first failure.
	Grace time.Duration

	// Metrics receives numeric readings on every available update. Optional.
	Metrics Metrics

	// Logger is used for publish diagnostics. Optional.
	Logger Logger
}

// Sensor publishes one value from a coordinator's payload as an entity.
//
// Thread Safety:
//   - All methods are safe for concurrent use; updates arrive on the
//     coordinator's fan-out goroutine.
type Sensor struct {
	id        string
	key       string
	source    Source
	publisher Publisher
	grace     time.Duration
	metrics   Metrics
	logger    Logger

	// now is swapped in tests to step through the grace window.
	now func() time.Time

	mu           sync.Mutex
	failingSince time.Time
	binding      *Binding
}

// NewSensor creates a sensor. Call Start to begin receiving updates.
func NewSensor(cfg SensorConfig) *Sensor {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sensor{
		id:        cfg.ID,
		key:       cfg.Key,
		source:    cfg.Source,
		publisher: cfg.Publisher,
		grace:     cfg.Grace,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ID returns the entity identifier.
func (s *Sensor) ID() string {
	return s.id
}

// Start subscribes the sensor to its coordinator and publishes the
// current state immediately so late dashboard subscribers see a value.
func (s *Sensor) Start() {
	s.mu.Lock()
	if s.binding == nil {
		s.binding = Bind(s.source, s.handleUpdate)
	}
	s.mu.Unlock()

	s.handleUpdate()
}

// Close detaches the sensor from its coordinator. Idempotent.
func (s *Sensor) Close() {
	s.mu.Lock()
	binding := s.binding
	s.mu.Unlock()

	if binding != nil {
		binding.Close()
	}
}

// Available reports whether the sensor currently considers its source
// healthy, honouring the grace window.
func (s *Sensor) Available() bool {
	snap := s.source.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableLocked(snap.Success)
}

// availableLocked evaluates availability and maintains the failure clock.
// Caller must hold mu.
func (s *Sensor) availableLocked(success bool) bool {
	if success {
		s.failingSince = time.Time{}
		return true
	}

	if s.failingSince.IsZero() {
		s.failingSince = s.now()
	}
	return s.now().Sub(s.failingSince) < s.grace
}

// handleUpdate reads the coordinator snapshot and publishes retained state.
func (s *Sensor) handleUpdate() {
	snap := s.source.Snapshot()

	s.mu.Lock()
	available := s.availableLocked(snap.Success)
	s.mu.Unlock()

	state := State{
		EntityID:  s.id,
		Source:    snap.Source,
		Value:     extractValue(snap.Data, s.key),
		Available: available,
		UpdatedAt: snap.Timestamp,
	}

	payload, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("marshalling entity state failed",
			"entity_id", s.id,
			"error", err,
		)
		return
	}

	topic := mqtt.Topics{}.EntityState(s.id)
	if err := s.publisher.PublishRetained(topic, payload); err != nil {
		s.logger.Warn("publishing entity state failed",
			"entity_id", s.id,
			"error", fmt.Errorf("topic %s: %w", topic, err),
		)
	}

	// Numeric readings also go to the time-series store when one is wired.
	if s.metrics != nil && available {
		if v, ok := numericValue(state.Value); ok {
			s.metrics.WriteEntityValue(s.id, snap.Source, v)
		}
	}
}

// numericValue coerces a payload value to float64. JSON-decoded numbers
// arrive as float64; integer types cover hand-built payloads in tests.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// extractValue pulls the configured key from the payload.
// An empty key publishes the whole payload.
func extractValue(data any, key string) any {
	if key == "" {
		return data
	}
	if m, ok := data.(map[string]any); ok {
		return m[key]
	}
	return nil
}
