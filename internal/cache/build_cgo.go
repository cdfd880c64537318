//go:build cgo_sqlite

package cache

// Compiled when building with CGO and the cgo_sqlite tag. Uses the C SQLite
// driver, which is faster for the bulk eviction scans on large caches.
//
// Build command:
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver used by the durable cache store.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
