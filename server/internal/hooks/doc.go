// Package hooks delivers webhook notifications after document writes.
// Each configured hook selects documents with a doublestar glob and posts to
// a generic HTTP, Slack or Teams endpoint. Delivery is asynchronous and never
// affects the outcome of the write that triggered it.
package hooks
