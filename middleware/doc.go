// Package middleware adapts riskAuth.Engine to net/http.
//
// # Handlers
//
//   - [RequestContext] copies client IP, User-Agent and Accept onto the
//     request context, where the Engine reads its risk inputs.
//   - [Guard] validates the bearer access token and stores the
//     [riskAuth.Principal] on the context.
//   - [Checkpoint] re-scores the session behind a Guard on sensitive routes
//     and answers 401 with a step-up hint when the Engine revokes it.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens, touch Redis or make authorization decisions itself.
package middleware
