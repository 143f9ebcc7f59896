// Package middleware exposes net/http adapters for services that sit behind
// Keyrunes: bearer-token authentication and group/admin authorization
// enforced per request.
//
// # Guards
//
//   - [Authenticate] resolves the caller via GET /api/users/me and injects
//     the user into the request context.
//   - [RequireGroup] and [RequireAllGroups] check any-of / all-of group
//     membership on the injected user.
//   - [RequireAdmin] admits administrators only.
//
// The authorization guards compose after [Authenticate], which performs the
// single live lookup per request that they all read from:
//
//	r.Use(middleware.Authenticate(client))
//	r.Handle("/admin", middleware.RequireAdmin()(adminHandler))
//
// # Architecture boundaries
//
// This package translates HTTP semantics into keyrunes.Client calls. It does
// NOT implement authentication itself: the caller's identity comes from the
// Keyrunes service on every request, never from locally decoded tokens.
//
// # What this package must NOT do
//
//   - Parse or verify JWTs (the service owns the keys).
//   - Cache verdicts across requests (attach an authcache to a Guard instead).
//   - Leak token contents into responses or logs.
package middleware
