// Package worklist is an engine for reviewable work lists: ordered, stateful
// catalogs of spatial work items that a review tool pages through, marks done
// and draws as a map layer that is not backed by a stored table.
//
// # Quick Start
//
//	ctx := context.Background()
//	loader := snapshot.NewBlobLoader(blobstore.NewLocalStore("./worklists"))
//
//	s := worklist.New(worklist.WithStateStore(statestore.NewFileStore("./state")))
//	defer s.Close()
//
//	cat, _ := s.Load(ctx, loader, "issues", worklist.AsLive())
//
// # Querying
//
// The virtual dataset presents a catalog with a fixed five-field schema
// (id, status, visited, isCurrent, shape):
//
//	ds, _ := s.OpenDataset(ctx, "worklist://localhost/issues")
//	rows, _ := ds.Query(ctx, vdataset.QueryFilter{Extent: &bbox})
//	ds.Close() // also cancels the refresh of "issues"
//
// A filter without extent selects the whole catalog, optionally restricted by
// status, so "everything still pending" is a cheap query.
//
// # Background Refresh
//
// Live work lists fetch display geometries from the authoritative store in
// the background:
//
//	store, _ := sqlstore.Open(sqlstore.DriverSQLite, "features.db")
//	s.Refresh(ctx, "issues", store)
//
// Until a geometry has been fetched, rows fall back to the rectangle of the
// item extent. Workers signal their completion through the catalog's change
// event, which the registry forwards to its observers as Modified.
//
// # Review State
//
//	s.SetStatus(ctx, "issues", 42, model.StatusDone)
//	s.Navigate(ctx, "issues", worklist.NavigateNearest)
//	s.Commit(ctx, "issues")
package worklist
