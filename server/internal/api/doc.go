// Package api implements the HTTP request router for the datastore.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET  /data/<path>  document as compact JSON; [] when the file does not exist
//	POST /data/<path>  store the JSON body pretty-printed; {"success":true}
//	GET  /<other>      static files from opts.StaticRoot, 404 when absent
//	POST /<other>      404 "Not found"
//	any other method   501
//
// Route handlers return an error instead of writing failures themselves.
// The boundary maps store.ErrInvalidPath to 400 and everything else to 500,
// with the error message as a plain-text body.
//
// Every request gets an X-Request-ID (an inbound one is reused), one log
// line, and a datastore_http_requests_total sample when metrics are enabled.
//
// NewAdmin(store, opts) serves /healthz, /metrics, /hooks and /ws/changes on
// the separate admin listener so the main port keeps the document path space.
package api
