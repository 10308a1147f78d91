// Package adapter defines the storage contract of the runtime.
//
// DatabaseAdapter is implemented by adapter/sqlstore (gorm: postgres with
// pgvector, mysql, sqlite) and adapter/memstore (in-process, chromem-go
// vector index). Guarded wraps any implementation with a circuit breaker so a
// failing database fails fast instead of stalling every agent turn.
package adapter
