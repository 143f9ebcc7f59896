// Package authcache provides opt-in verdict stores for authorization
// guards. A cache trades freshness for latency: within the configured TTL
// a revoked membership still reads as granted, so keep TTLs short.
//
// # Implementations
//
//   - [Memory]: bounded in-process LRU with per-entry TTL.
//   - [Redis]: shared store for fleets of processes guarding the same users.
//
// # Architecture boundaries
//
// This package stores yes/no verdicts under opaque keys. It does NOT know
// about users, groups, or the Keyrunes wire protocol; key layout is owned
// by the guard that writes the entries.
//
// # What this package must NOT do
//
//   - Call the Keyrunes service or any other origin of truth.
//   - Invent verdicts: a miss is a miss, never a default deny or allow.
//   - Import the root keyrunes package (the root imports authcache).
package authcache
