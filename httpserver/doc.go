// Package httpserver hosts the gateway's HTTP surface: the device API,
// operator basic authentication, liveness/readiness probes, connection
// draining for rolling deploys, optional pprof, and the dedicated metrics
// listener. Request logging uses the structured slog middleware; lifecycle
// is managed through RunInBackground and Shutdown.
package httpserver
