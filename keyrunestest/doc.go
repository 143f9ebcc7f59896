// Package keyrunestest runs an in-process fake of the Keyrunes HTTP service
// for tests: real sockets via httptest, real HS256 session tokens, and the
// same status-code contract the production service answers with (401 for bad
// credentials, 403 for a rejected admin key, 404 for unknown users and
// groups, 409 for duplicate registrations).
//
// A [Server] starts empty. Seed state directly with [Server.SeedUser] or
// drive it through the public endpoints the way a client would.
//
//	srv := keyrunestest.New()
//	defer srv.Close()
//
//	id := srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9", "staff")
//	client, _ := keyrunes.New(srv.URL)
//
// # What this package must NOT do
//
//   - Persist anything (state lives in memory and dies with the server).
//   - Hash passwords or enforce API keys (it fakes the protocol, not the
//     service's internals).
//   - Be reachable from outside the test process.
package keyrunestest
