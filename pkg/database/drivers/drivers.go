// Package drivers registers the database/sql drivers the store can use.
// Binaries import it explicitly so library tests that never open a
// database stay free of the heavy engines.
package drivers

// Ready makes the import explicit at the call site.
func Ready() {}
