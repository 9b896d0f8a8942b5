package mqtt

import "fmt"

// Topic prefixes for the HomePulse MQTT hierarchy.
//
// All topics live under a single root:
//
//	homepulse/poll/{source}/get              poll request to a bridge
//	homepulse/poll/{source}/data/{request}   poll response from a bridge
//	homepulse/push/{source}                  unsolicited data from a bridge
//	homepulse/entity/{entity}/state          canonical entity state (retained)
//	homepulse/system/status                  hub online/offline status (retained, LWT)
const (
	// TopicRoot is the base for all HomePulse topics.
	TopicRoot = "homepulse"

	// TopicPrefixPoll is the base for poll request/response topics.
	TopicPrefixPoll = "homepulse/poll"

	// TopicPrefixPush is the base for bridge push topics.
	TopicPrefixPush = "homepulse/push"

	// TopicPrefixEntity is the base for entity state topics.
	TopicPrefixEntity = "homepulse/entity"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homepulse/system"
)

// Topics provides builders for HomePulse MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	getTopic := topics.PollGet("weather-station")
//	// Returns: "homepulse/poll/weather-station/get"
type Topics struct{}

// PollGet returns the topic a bridge listens on for poll requests.
//
// Example: homepulse/poll/weather-station/get
func (Topics) PollGet(sourceID string) string {
	return fmt.Sprintf("%s/%s/get", TopicPrefixPoll, sourceID)
}

// PollData returns the topic a bridge answers a specific poll request on.
//
// Example: homepulse/poll/weather-station/data/req-abc123
func (Topics) PollData(sourceID, requestID string) string {
	return fmt.Sprintf("%s/%s/data/%s", TopicPrefixPoll, sourceID, requestID)
}

// PollDataPattern returns a pattern matching all poll responses for a source.
//
// Pattern: homepulse/poll/weather-station/data/+
func (Topics) PollDataPattern(sourceID string) string {
	return fmt.Sprintf("%s/%s/data/+", TopicPrefixPoll, sourceID)
}

// Push returns the topic a bridge pushes unsolicited data on.
//
// Example: homepulse/push/doorbell
func (Topics) Push(sourceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPush, sourceID)
}

// EntityState returns the canonical entity state topic.
// State is published retained so new subscribers see the current value.
//
// Example: homepulse/entity/outdoor-temperature/state
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixEntity, entityID)
}

// SystemStatus returns the hub status topic. The broker publishes the
// Last Will here if the hub disconnects unexpectedly.
//
// Example: homepulse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPushes returns a pattern matching push data from every source.
//
// Pattern: homepulse/push/+
func (Topics) AllPushes() string {
	return fmt.Sprintf("%s/+", TopicPrefixPush)
}

// AllEntityStates returns a pattern matching every entity state topic.
//
// Pattern: homepulse/entity/+/state
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixEntity)
}

// AllTopics returns a pattern matching all HomePulse topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: homepulse/#
func (Topics) AllTopics() string {
	return TopicRoot + "/#"
}
