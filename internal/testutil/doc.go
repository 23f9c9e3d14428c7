//go:build integration

// Package testutil provides a throwaway Postgres instance for
// integration tests via testcontainers. Use StartPostgresContainer in
// TestMain, run store.Migrate against its DSN, then hand out the *store.DB
// to subtests.
//
// Run integration tests with:
//
//	go test -tags=integration ./...
package testutil
