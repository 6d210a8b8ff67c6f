// Package registry keeps the open work-list catalogs of a process, keyed by
// name, and tells observers when catalogs are added, removed or modified.
//
// A Registry is an ordinary value owned by whoever composes the application;
// there is no package-level instance.
//
// Observers are called synchronously in subscription order. An observer that
// returns an error or panics does not keep the remaining observers from being
// called; the failures are joined, logged and handed to the optional error
// handler, but never returned to the code that triggered the notification.
//
// Every registered catalog's change events are forwarded as Modified
// notifications. Layer bindings track which display layers show a catalog;
// removing the last binding removes the catalog from the registry.
package registry
