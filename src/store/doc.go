// Package store implements the persisted tables of requests and timetable
// entries.
//
// Two implementations of the Store interface are provided: InmemStore, which
// keeps everything in maps and is used in tests, and BadgerStore, which
// persists records in a Badger database. Both apply the same merge rules
// (merge.go) when a record is upserted, and both serialize writers so that a
// batch passed to Update is applied atomically.
package store
