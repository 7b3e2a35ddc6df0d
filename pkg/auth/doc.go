// Package auth provides the pluggable authentication core for identity.
//
// Authentication uses a chain-of-responsibility pattern with three outcomes:
// each scheme returns Success (principal found), Failure (credentials were
// presented but are invalid), or Forward (the scheme does not apply). The
// chain stops on the first Success or Failure. When every scheme forwards,
// the chain's MissingAuthPolicy decides the result.
//
// The package also defines the principal model shared by every scheme and
// store: UserID, UserData, Principal, Claims and Roles.
//
// Auth is exposed to servers as net/http middleware, keeping it decoupled
// from any particular router.
package auth
