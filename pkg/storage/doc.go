// Package storage defines storage configuration shared by the PostgreSQL
// event store and the Redis preference store. The concrete clients live in
// the postgres subpackage.
package storage
