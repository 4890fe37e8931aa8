// Package testutil provides deterministic clocks, run IDs and loggers for tests.
package testutil
