// Package postgres provides the PostgreSQL connection manager (primary plus
// optional read replicas) backing the analytics event store, and the Redis
// client backing the opt-out preference store.
//
// Writes (event appends, reclassification, rollups) go to the primary; the
// aggregation engine reads from a replica when one is configured, falling
// back to the primary otherwise. Replica selection is round-robin.
package postgres
