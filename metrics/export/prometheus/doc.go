// Package prometheus exposes riskAuth engine metrics through client_golang.
//
// [Collector] reads [riskAuth.Engine.MetricsSnapshot] on every scrape and
// publishes constant metrics, so the engine's hot path stays lock-free.
// Register it on your own registry, or use [Handler] for a private one.
package prometheus
