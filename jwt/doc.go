// Package jwt issues and verifies short-lived access tokens. A token carries
// the user, the refresh session it belongs to, the user's roles and the
// authentication methods used, so authorization can run without a store
// round trip while revocation is still checked against the session.
package jwt
