package repository

import (
	"database/sql"
	"time"
)

// dbTimeLayout matches MySQL DATETIME and sorts lexically in SQLite.
const dbTimeLayout = "2006-01-02 15:04:05"

// dbTime formats t for binding. Sub-second precision is dropped, matching
// DATETIME columns.
func dbTime(t time.Time) string { return t.UTC().Format(dbTimeLayout) }

// truncate normalises t the same way the database will store it.
func truncate(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
