package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRefreshPoint records the outcome of one coordinator refresh.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Called from coordinator listeners, so a slow or dead InfluxDB never
// stalls the refresh cycle.
//
// Parameters:
//   - source: The source identifier (e.g., "weather-station")
//   - success: Whether the refresh produced data
//   - duration: How long the fetch took
//   - failureStreak: Consecutive failures so far (0 on success)
//
// Example:
//
//	client.WriteRefreshPoint("weather-station", true, 120*time.Millisecond, 0)
func (c *Client) WriteRefreshPoint(source string, success bool, duration time.Duration, failureStreak int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"coordinator_refresh",
		map[string]string{
			"source": source,
		},
		map[string]interface{}{
			"success":        success,
			"duration_ms":    float64(duration.Milliseconds()),
			"failure_streak": failureStreak,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEntityValue records a numeric entity value.
//
// Used for graphing sensor readings alongside refresh health.
//
// Parameters:
//   - entityID: Entity identifier (e.g., "outdoor-temperature")
//   - source: The source the value came from
//   - value: The numeric reading
func (c *Client) WriteEntityValue(entityID, source string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"entity_value",
		map[string]string{
			"entity_id": entityID,
			"source":    source,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
