// Package interfaces defines the domain types and collaborator contracts
// shared across the gateway: the Device record, the transactional DeviceStore
// registry, and the typed authentication error kinds.
//
// The package deliberately contains no protocol logic. The authentication
// engine (package engine) consumes these types and stays free of transport
// and persistence concerns; stores (package registry) implement DeviceStore
// against them.
package interfaces
