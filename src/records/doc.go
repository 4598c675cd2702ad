// Package records defines the two record kinds exchanged between nodes, booking
// and cancellation requests and timetable entries, along with the node roles,
// ticket numbers and the codecs used to put records on the wire and on disk.
package records
