// Package vdataset presents a work-list catalog as a read-only dataset with
// a fixed schema, so a rendering layer can query it like a stored table.
//
// A Dataset is a stateless translator over a catalog resolved by name: it
// caches nothing and every Row it returns has all fields set.
//
// # State
//
//	Closed --Open--> Open --Close--> Closed
//
// Query on a closed dataset fails with ErrNotOpen. Close releases the
// association with any background refresh by firing its canceller without
// waiting for the workers.
//
// # Connection Identifiers
//
// Open accepts a bare work-list name or a URI such as
// worklist://localhost/issues.iwl?unused. Percent-encoding is decoded
// repeatedly until the value is stable, because hosts may encode twice.
package vdataset
