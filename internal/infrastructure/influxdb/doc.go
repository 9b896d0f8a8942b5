// Package influxdb records coordinator refresh metrics in InfluxDB v2.
//
// Every refresh outcome is written as a point in the coordinator_refresh
// measurement (tagged by source, with success, duration and failure streak
// fields), so dashboards can spot flapping or slow sources. Writes are
// batched and asynchronous; InfluxDB being down never blocks polling.
//
// The integration is optional. When influxdb.enabled is false in the
// configuration, Connect returns ErrDisabled and the hub runs without
// metrics.
package influxdb
