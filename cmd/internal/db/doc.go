// Package db owns the Postgres connection pool.
//
// Manager connects lazily: the first caller that needs the database starts a
// single shared connection attempt and every concurrent caller joins it. The
// attempt is not tied to any caller's context, so a caller that gives up does
// not abort a connect others may still be waiting on.
//
// Schema lives in migrations/ and is applied by the migrate subpackage.
package db
