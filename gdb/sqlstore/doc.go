// Package sqlstore implements gdb.Store on top of gorm.
//
// Rows live in a "features" table keyed by (table_id, row_id) with the shape
// stored as WKB. SQLite and PostgreSQL are supported.
//
// Every session pins one dedicated connection from the pool for its whole
// lifetime, so a refresh worker never shares a connection with another one.
package sqlstore
