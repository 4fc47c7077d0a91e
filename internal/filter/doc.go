// Package filter redacts provider responses with the same policy used to
// enforce the call. It never loosens an enforcement decision: collection
// items that fail a policy predicate are removed, single resources that
// fail are replaced by null, and user profile fields considered PII are
// always stripped from messaging responses.
package filter
