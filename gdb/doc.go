// Package gdb defines the boundary to the authoritative store that owns the
// real rows behind work items.
//
// A Store hands out Sessions. A Session is bound to the goroutine that opened
// it and must not be shared; refresh workers open one session each and close
// it when their batch is finished.
//
// The sqlstore subpackage provides a gorm implementation; MemoryStore is an
// in-process implementation for tests and demos.
package gdb
