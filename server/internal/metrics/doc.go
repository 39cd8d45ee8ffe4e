// Package metrics counts document traffic and exposes it in the Prometheus
// text exposition format.
//
// Registry keeps plain counters behind a mutex and converts them to
// client_model MetricFamily values on every scrape, so the server carries no
// global collector state. Families:
//
//	datastore_http_requests_total{route,code}  counter
//	datastore_bytes_written_total              counter
//	datastore_documents_missing_total          counter
//	<registered gauges>                        gauge
package metrics
