// Package logger provides structured logging for Cardinal.
//
// This package configures log/slog for the server:
//
//   - JSON and text output formats
//   - Log level filtering with runtime adjustment
//
// The level is held in a shared slog.LevelVar so configuration
// reloads can change it without rebuilding handlers.
package logger
