// Package model defines the core types shared by every worklist package.
//
// # Identity Types
//
//   - Identity: the authoritative row a work item stands for (TableID, RowID)
//   - TableIdentity: a source table (ID, Name)
//   - OID: catalog-local item number, stable for the life of a catalog
//
// # Lifecycle Types
//
//   - Status: Pending or Done
//   - Visibility: which items navigation may visit (Todo or All)
//   - GeometryType: shape kind of the source feature, used for symbology
//
// # Work Items
//
// A WorkItem carries its identity, lifecycle state, optional extent and an
// optional buffered geometry. The buffered geometry is published atomically so
// background refresh workers can replace it while readers are querying:
//
//	item := model.NewWorkItem(1, model.Identity{TableID: 12, RowID: 7})
//	item.SetBufferedGeometry(poly)
//	g, ok := item.BufferedGeometry()
package model
