// Package identity resolves actor identities against the product's user and
// subscription store. The analytics classifier consumes it to decide whether
// an event's actor is an internal user (administrative role or billing tier
// override).
//
// Lookups are cached in a short-TTL expirable LRU so hot producers do not
// hammer the users table. Only the role and tier override are cached; the
// opt-out preference is deliberately not part of this package.
package identity
