// Package postgres implements riskAuth.UserStore and permission.PolicyStore
// on PostgreSQL through database/sql and the pgx stdlib driver.
//
// Lockout fields written here mirror the Redis counter; the Engine never
// reads them back for decisions.
package postgres
