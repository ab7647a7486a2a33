//go:build !test

// Production builds link the SQL drivers here; the test tag leaves them out
// so the root package tests stay light.
package main

import "world-study/pkg/database/drivers"

func init() {
	drivers.Ready()
}
