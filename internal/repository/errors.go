// Package repository persists users, RBAC assignments and refresh tokens.
// The SQL is limited to what MySQL and SQLite both accept: `?` placeholders
// and UTC timestamps bound as "YYYY-MM-DD HH:MM:SS" strings.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrPhoneExists is returned when inserting or updating a user with a phone
// number that belongs to someone else.
var ErrPhoneExists = errors.New("phone already exists")

// ErrDuplicate is returned when a role or permission collides with an
// existing name.
var ErrDuplicate = errors.New("duplicate")

// ErrDuplicateAction is returned when a permission's resource/action pair
// is already granted by another permission.
var ErrDuplicateAction = errors.New("duplicate resource/action")

// ErrTokenNotActive is returned by Rotate when the token being replaced is
// missing, already revoked, expired, or owned by a different user/device.
var ErrTokenNotActive = errors.New("refresh token is not active")

// isUniqueViolation recognises MySQL error 1062 and the SQLite unique
// constraint message.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// violatedColumn reports whether the unique violation names col in its key.
// Only the key part of the message is inspected: MySQL reports
// "... for key 'users.uq_users_phone'" and SQLite "UNIQUE constraint
// failed: users.phone", and the duplicated value itself may contain col.
func violatedColumn(err error, col string) bool {
	msg := strings.ToLower(err.Error())
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		msg = strings.ToLower(myErr.Message)
		if i := strings.LastIndex(msg, " for key "); i >= 0 {
			msg = msg[i:]
		}
	} else if i := strings.Index(msg, "constraint failed:"); i >= 0 {
		msg = msg[i:]
	}
	return strings.Contains(msg, col)
}
