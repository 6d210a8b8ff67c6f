// Package server exposes open work lists over HTTP.
//
// Rows are served as GeoJSON feature collections so that a remote map layer
// can render them. Status changes, navigation, commits and refreshes go
// through the same worklist.Session the daemon uses.
package server
