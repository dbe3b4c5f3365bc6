// Package api exposes the account and session use cases over HTTP under
// /api/v1/auth. Refresh secrets travel in an HttpOnly cookie and, for
// non-browser clients, in the JSON body.
package api
