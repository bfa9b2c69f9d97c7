// Package authvault implements the credential and session lifecycle for a
// multi-user web service: it issues, verifies, refreshes, and revokes
// signed tokens, manages one-time codes and password-reset secrets, and
// applies brute-force rate limiting in front of the sensitive flows.
//
// The package is built around two collaborating stores which are injected
// as ports at construction time. The DurableStore is the source of truth
// for accounts, credentials, and the single active refresh session per
// account. The EphemeralCache holds derived state only: revocation
// markers for tokens invalidated before their natural expiry, and a
// best-effort mirror of the refresh session. Session existence is always
// decided by the durable store; the cache is authoritative only for
// revocation markers, which is why access-token verification fails
// closed during a cache outage unless explicitly configured to degrade.
package authvault
