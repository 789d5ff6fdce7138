// Package database provides SQLite storage for roilabel run history and
// remembered session defaults.
//
// Every inference run is stored as a JSON RunReport together with the
// columns needed to list history without decoding reports. The defaults
// table keeps the last model, region and tile size per server so the next
// invocation can omit them.
//
// The database is a single file (modernc.org/sqlite, no cgo) under the XDG
// data directory, opened in WAL mode with one connection.
package database
