// Package cli implements the datactl command tree.
//
//	datactl get <path>                 print a document, indented
//	datactl put <path> [file|-]        store a file or stdin
//	datactl watch [--match glob]       stream change events
//	datactl stats                      request and write counters from /metrics
//	datactl health                     data-root readiness from /healthz
//
// Persistent flags: --server (document router), --admin (admin listener),
// --timeout (per-request HTTP timeout).
package cli
