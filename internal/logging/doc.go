// Package logging configures structured slog output for lfsearch: JSON
// records to a size-rotated file, optionally mirrored to stderr.
//
// The MCP stdio transport owns stdout, so nothing here ever writes there.
package logging
