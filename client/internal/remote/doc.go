// Package remote is the HTTP and WebSocket client for a datastore server.
//
// Get and Put talk to the document router. Watch follows the change feed on
// the admin listener and reconnects with exponential backoff until its
// context is cancelled. Transport errors and 502/503/504 responses are
// retried; any other non-200 status is returned as a *StatusError.
package remote
