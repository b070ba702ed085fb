// Package devicehandler processes HTTP requests for the device identity API.
//
// It validates payloads at the boundary, runs every mutation through one
// DeviceStore transaction with the protocol engine deciding what commits,
// and maps engine error kinds to HTTP status codes. The registration
// endpoint is open to devices; provisioning, listing, and lifecycle
// endpoints sit behind the operator authentication middleware supplied by
// the server.
package devicehandler
