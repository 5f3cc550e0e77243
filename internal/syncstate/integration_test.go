package syncstate

import (
	"database/sql"
	"testing"

	"jobmate/jobsync/internal/db"
	"jobmate/jobsync/internal/testutil"
)

func integrationDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB := db.SQLDB(testutil.Pool(t))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}
