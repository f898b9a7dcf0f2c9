//go:build integration

// Package testdb provides helpers for tests that need a real PostgreSQL
// database.
//
// Tests run inside a transaction that is rolled back when they finish, so
// they can share one migrated database and run in parallel:
//
//	func TestFileStore(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        files := postgres.NewPostgresFileStore(tx, nil)
//	        // ...
//	    })
//	}
//
// The database comes from DATABASE_URL or CANONIFY_TEST_DB_URL. When
// neither is set the test is skipped. Files in this package carry the
// integration build tag; run them with `go test -tags=integration ./...`.
package testdb
