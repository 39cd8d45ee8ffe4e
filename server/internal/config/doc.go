// Package config loads the server configuration from the `server:` section
// of a YAML file.
//
// Config fields:
//   - HTTPPort    : port for the document router (default 8000)
//   - AdminPort   : port for /healthz, /metrics, /hooks and /ws/changes (default 8001, 0 disables)
//   - GRPCPort    : port for the gRPC health service (default 0, disabled)
//   - DataRoot    : directory behind the /data/ namespace (default "data")
//   - StaticRoot  : directory served for every other path (default ".")
//   - MaxBodyBytes: largest accepted POST body (default 10 MiB)
//   - Log         : slog level and format
//   - Hooks       : webhook targets notified after matching writes
//   - Seed        : default documents written at startup when absent
//
// Load(path) applies defaults before unmarshalling, then validates. Default()
// is used as-is when the server runs without a config file. Watch re-runs Load
// whenever the file changes on disk.
package config
