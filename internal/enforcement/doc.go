// Package enforcement decides whether one proposed provider action is
// allowed by one policy snapshot.
//
// Evaluation short-circuits on the first denial:
//   - the action must resolve to a capability
//   - the capability flag must be enabled
//   - high-risk capabilities must have a recorded confirmation
//   - provider-specific context predicates must pass
//
// The engine performs no I/O. Confirmations are loaded by the caller and
// passed in with the request, and the action context is extracted from the
// raw argument JSON by ExtractContext.
package enforcement
