package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTable is returned when a snapshot item references a table
	// that is not listed in the snapshot.
	ErrUnknownTable = errors.New("unknown table")
	// ErrMalformedSnapshot is returned when snapshot items violate the catalog
	// invariants (duplicate or non-positive OIDs, duplicate identities,
	// invalid extents).
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrUnsupported is returned by operations a catalog kind does not offer.
	ErrUnsupported = errors.New("unsupported by catalog kind")
	// ErrForeignItem is returned when an item does not belong to the catalog.
	ErrForeignItem = errors.New("item does not belong to catalog")
	// ErrItemNotFound is returned when navigating to an unknown OID.
	ErrItemNotFound = errors.New("item not found")
)

// SnapshotError reports the snapshot item that prevented construction.
type SnapshotError struct {
	OID    int64
	Reason string
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%v: item %d: %s", e.Err, e.OID, e.Reason)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}
