// Package mqtt provides the MQTT transport layer for HomePulse Core.
//
// It wraps the Eclipse Paho client with connection management, automatic
// reconnection, subscription restoration, and the HomePulse topic scheme.
//
// # Architecture
//
//	┌──────────────┐   poll/{source}/get    ┌──────────────┐
//	│              │ ─────────────────────> │              │
//	│  HomePulse   │   poll/{source}/data/* │   Bridges    │
//	│  Core        │ <───────────────────── │  (devices)   │
//	│              │   push/{source}        │              │
//	│              │ <───────────────────── │              │
//	└──────┬───────┘                        └──────────────┘
//	       │ entity/{id}/state (retained)
//	       v
//	  Dashboards / subscribers
//
// # Topic Scheme
//
// All traffic lives under the homepulse/ root:
//
//   - homepulse/poll/{source}/get: hub asks a bridge for fresh data
//   - homepulse/poll/{source}/data/{request_id}: bridge answers one request
//   - homepulse/push/{source}: bridge pushes unsolicited data
//   - homepulse/entity/{id}/state: canonical entity state, retained
//   - homepulse/system/status: hub online/offline status, retained with LWT
//
// # Connection Lifecycle
//
// Connect establishes the session and registers a Last Will so the broker
// announces the hub's death on homepulse/system/status. On every reconnect
// the client restores tracked subscriptions and republishes online status.
// Close publishes a graceful offline status before disconnecting.
package mqtt
