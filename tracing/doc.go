// Package tracing wraps OpenTelemetry so that cache components can open and
// close spans without importing the SDK. Until Init or InitWithExporter is
// called the global no-op provider is used and spans cost nothing.
package tracing
