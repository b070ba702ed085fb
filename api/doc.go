// Package api defines the typed request and response schemas of the device
// gateway's HTTP surface, the validation applied at the boundary, and the
// mapping from protocol error kinds to HTTP status codes.
//
// Subpackages implement the two sides of the wire: devicehandler serves the
// endpoints, clients consumes them.
package api
