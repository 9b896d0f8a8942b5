// Package source connects coordinators to bridges over MQTT.
//
// Two source shapes exist, mirroring how devices actually behave:
//
//   - PollSource implements request/response polling. The hub publishes a
//     poll request to homepulse/poll/{source}/get carrying a unique request
//     ID, and the bridge answers on homepulse/poll/{source}/data/{request_id}.
//     PollSource exposes the round trip as a coordinator UpdateFunc, so
//     timeouts, error payloads and auth rejections surface through the
//     coordinator's normal failure handling.
//
//   - PushSource handles bridges that volunteer data. It subscribes to
//     homepulse/push/{source} and injects each decoded payload into the
//     coordinator via SetUpdatedData, bypassing the fetch path entirely.
//
// Both sources hold only a narrow Broker interface, so tests substitute an
// in-process fake instead of a live MQTT connection.
package source
