// Package permission decides whether a subject may perform an action on a
// resource.
//
// # Decision
//
// The decision is the union of two stages and denies by default:
//
//  1. RBAC: any of the subject's roles grants the resource/action pair.
//     "*" matches any resource or action.
//  2. ABAC: a policy for the resource (or "*") lists the action and every
//     one of its conditions holds.
//
// A policy store error denies.
//
// # Policy sources
//
// [StaticStore] serves a fixed [PolicySet]. [FileStore] reads YAML and
// reloads it on change through fsnotify; a reload that fails to parse keeps
// the previous set. The Postgres store lives in store/postgres.
//
// # What this package must NOT do
//
//   - Import riskAuth, jwt, or session.
//   - Mutate a PolicySet after it has been published.
package permission
