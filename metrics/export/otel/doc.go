// Package otel publishes riskAuth engine metrics as OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per cumulative histogram bucket. A single callback
// reads the engine snapshot on each collection cycle. Callers own the
// MeterProvider.
package otel
