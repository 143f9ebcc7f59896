// Package keyrunes is the Go client SDK for the Keyrunes authentication and
// authorization service. It covers user and admin registration, login with
// bearer-token sessions, identity lookup, group membership checks, and
// composable authorization guards for protecting application code paths.
//
// A [Client] is safe for concurrent use after construction. Every remote call
// takes a [context.Context], performs exactly one synchronous HTTP round trip,
// and reports failures through the typed error taxonomy (ErrAuthentication,
// ErrAuthorization, ErrConflict, ...) so callers can branch with [errors.Is].
//
// # Architecture boundaries
//
// keyrunes is the public surface. It exposes [Client], [Guard], [Config], and
// value types (User, Token, GroupCheck, SessionClaims). Internal coordination,
// such as audit dispatch and metric storage, lives under internal/ and is never
// exported. HTTP middleware adapters live in the middleware subpackage and
// verdict caching in authcache; both build strictly on this package's API.
//
// # What this package must NOT do
//
//   - Verify JWT signatures or mint tokens (the Keyrunes service owns the keys;
//     claims are decoded unverified as a session snapshot only).
//   - Retry, back off, or otherwise hide transport failures from the caller.
//   - Cache authorization verdicts unless the caller opts in via Guard.WithCache.
//
// # Failure contract
//
// Transport failures and gateway errors map to ErrServiceUnavailable, credential rejection
// to ErrAuthentication, missing local session to ErrUnauthenticated, and denied
// checks to ErrAuthorization. The full mapping is documented on [APIError].
package keyrunes
