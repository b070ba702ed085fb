// Package registry provides the durable device registry behind the
// authentication engine.
//
// Two DeviceStore implementations are included. GormStore persists records
// in PostgreSQL through GORM and serializes per-device mutations with
// SELECT ... FOR UPDATE row locks inside a transaction. MemoryStore keeps
// records in process memory under per-device mutexes and backs tests and
// single-node development. MockStore is a testify mock of the contract for
// collaborator tests.
//
// Both stores hand callers snapshots: mutating a returned record never
// changes stored state without going through Mutate.
package registry
