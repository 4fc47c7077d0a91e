// Package policy defines the per-provider integration policy shapes.
//
// A policy is a closed, provider-tagged set of shapes:
//   - boolean capability flags (canSend, canDelete, ...)
//   - optional allowlist/blocklist filters (recipients, repos, folders, URLs, channels)
//   - optional per-category rate limits
//
// The package also owns the static action table that maps every provider
// action to exactly one capability and one rate-limit category, the
// high-risk capability sets, the security-level classifier and the
// full-access defaults used when an integration is attached without a
// policy. Everything here is pure data; no I/O.
package policy
