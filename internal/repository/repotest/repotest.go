// Package repotest provides a throwaway SQLite database carrying the auth
// schema, for tests of the repositories and the services built on them.
package repotest

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// schema mirrors database.Migrate in SQLite syntax. DATETIME columns make
// the driver hand back time.Time values, as MySQL does with parseTime.
const schema = `
CREATE TABLE users (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	phone          TEXT UNIQUE,
	password_hash  TEXT NOT NULL,
	first_name     TEXT NOT NULL,
	last_name      TEXT NOT NULL,
	is_active      INTEGER NOT NULL DEFAULT 1,
	email_verified INTEGER NOT NULL DEFAULT 0,
	phone_verified INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	last_login_at  DATETIME
);

CREATE TABLE roles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE permissions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	resource   TEXT NOT NULL,
	action     TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	UNIQUE (resource, action)
);

CREATE TABLE user_roles (
	user_id     TEXT NOT NULL,
	role_id     TEXT NOT NULL,
	is_active   INTEGER NOT NULL DEFAULT 1,
	assigned_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, role_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
);

CREATE TABLE role_permissions (
	role_id       TEXT NOT NULL,
	permission_id TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	assigned_at   DATETIME NOT NULL,
	PRIMARY KEY (role_id, permission_id),
	FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
	FOREIGN KEY (permission_id) REFERENCES permissions(id) ON DELETE CASCADE
);

CREATE TABLE refresh_tokens (
	id               TEXT PRIMARY KEY,
	token_hash       TEXT NOT NULL UNIQUE,
	user_id          TEXT NOT NULL,
	device_id        TEXT NOT NULL,
	device_name      TEXT,
	user_agent       TEXT,
	created_by_ip    TEXT,
	created_at       DATETIME NOT NULL,
	expires_at       DATETIME NOT NULL,
	used_at          DATETIME,
	revoked_at       DATETIME,
	revoked_by_ip    TEXT,
	replaced_by_hash TEXT,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX idx_refresh_tokens_user_device ON refresh_tokens(user_id, device_id);
CREATE INDEX idx_refresh_tokens_expires ON refresh_tokens(expires_at);
`

// Open creates a temporary SQLite file with the schema applied. The pool is
// limited to one connection so transactions serialize the way row locks do
// in MySQL, without SQLITE_BUSY surprises.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "admin-auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	path := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(path) })

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}
