// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape and emits one
// const counter per engine counter plus the Authorize latency histogram.
// Callers register it on their own registry.
package prometheus
