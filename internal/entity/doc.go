// Package entity exposes coordinator data as addressable entities.
//
// A Sensor subscribes to one coordinator, extracts a single value from the
// shared payload and publishes it as retained JSON on
// homepulse/entity/{id}/state. Many sensors share one coordinator, so one
// poll cycle feeds every entity carved from the same device payload.
//
// Availability follows the coordinator's health with a grace window: a
// source must keep failing for longer than the configured grace before its
// sensors report unavailable, but a single success flips them back to
// available immediately. Short network blips therefore never flap entity
// availability on dashboards.
package entity
