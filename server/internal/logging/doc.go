// Package logging builds the server's slog.Logger from the `log:` config
// section. The level lives in a slog.LevelVar so a config reload can change
// verbosity without replacing the handler.
package logging
