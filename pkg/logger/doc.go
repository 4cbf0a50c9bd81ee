// Package logger builds configured log/slog loggers for rolloutkit services.
//
// Every component in this module accepts a *slog.Logger through an option and
// falls back to slog.Default(); this package is the one place that decides
// format, level, and static attributes.
package logger
