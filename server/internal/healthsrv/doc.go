// Package healthsrv exposes the standard gRPC health service
// (grpc.health.v1.Health) for the datastore.
//
// New(check, interval) wraps google.golang.org/grpc/health. Run(ctx) probes
// check every interval and flips both the overall service ("") and the
// "datastore" service between SERVING and NOT_SERVING. Stop marks every
// service NOT_SERVING and drains in-flight calls.
//
// The listener is optional; the server only starts it when grpc_port is set.
package healthsrv
