// Package metrics exposes networker activity to Prometheus.
//
// The networker reports through the Recorder interface. Noop discards
// everything; NewPrometheus registers collectors on a Registerer so tests
// can use a private registry and the device binary the default one.
package metrics
