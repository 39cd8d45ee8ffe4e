// Package store keeps JSON documents as files under a single data root.
//
// Documents are addressed by slash-separated paths relative to the root.
// Paths that would leave the root are rejected with ErrInvalidPath before any
// filesystem access. Reads return compact JSON; writes validate the body,
// pretty-print it with a two-space indent and replace the file contents in
// place, creating parent directories as needed.
//
// The store does not serialise access to a document. Two concurrent writes to
// the same path land in either order, and a read racing a write may observe a
// truncated file and fail to parse. Callers that need stronger guarantees must
// coordinate themselves.
package store
