//go:build !cgo_sqlite

package cache

// Compiled by default. Uses the pure Go SQLite driver so the engine
// cross-compiles without a C toolchain.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver used by the durable cache store.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
