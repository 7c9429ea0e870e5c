// Package tracing wraps OpenTelemetry so that the dispenser, coordinator and
// fan-out can record spans with StartSpan and EndSpan without importing the
// upstream packages. Spans are no-ops until Init installs an exporter.
package tracing
