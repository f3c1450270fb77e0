// Package geo resolves client addresses to coordinates and decides whether
// the travel implied by two consecutive logins is physically plausible.
//
// Lookups go through [CachedLocator]: Redis first (7 day TTL), then the
// upstream [Locator] under a bounded timeout and an outbound rate limit.
// Any failure surfaces as [ErrLookupUnavailable]; callers skip the travel
// factor instead of inventing a location.
package geo
