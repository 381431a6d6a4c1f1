package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement so the DSN does not need
// multiStatements. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             CHAR(36)     NOT NULL PRIMARY KEY,
		email          VARCHAR(255) NOT NULL,
		phone          VARCHAR(32)  NULL,
		password_hash  VARCHAR(255) NOT NULL,
		first_name     VARCHAR(100) NOT NULL,
		last_name      VARCHAR(100) NOT NULL,
		is_active      TINYINT(1)   NOT NULL DEFAULT 1,
		email_verified TINYINT(1)   NOT NULL DEFAULT 0,
		phone_verified TINYINT(1)   NOT NULL DEFAULT 0,
		created_at     DATETIME     NOT NULL,
		updated_at     DATETIME     NOT NULL,
		last_login_at  DATETIME     NULL,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS roles (
		id         CHAR(36)    NOT NULL PRIMARY KEY,
		name       VARCHAR(64) NOT NULL,
		is_active  TINYINT(1)  NOT NULL DEFAULT 1,
		created_at DATETIME    NOT NULL,
		UNIQUE KEY uq_roles_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS permissions (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		name       VARCHAR(128) NOT NULL,
		resource   VARCHAR(64)  NOT NULL,
		action     VARCHAR(64)  NOT NULL,
		is_active  TINYINT(1)   NOT NULL DEFAULT 1,
		created_at DATETIME     NOT NULL,
		UNIQUE KEY uq_permissions_name (name),
		UNIQUE KEY uq_permissions_resource_action (resource, action)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id     CHAR(36)   NOT NULL,
		role_id     CHAR(36)   NOT NULL,
		is_active   TINYINT(1) NOT NULL DEFAULT 1,
		assigned_at DATETIME   NOT NULL,
		PRIMARY KEY (user_id, role_id),
		CONSTRAINT fk_user_roles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_user_roles_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id       CHAR(36)   NOT NULL,
		permission_id CHAR(36)   NOT NULL,
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		assigned_at   DATETIME   NOT NULL,
		PRIMARY KEY (role_id, permission_id),
		CONSTRAINT fk_role_permissions_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
		CONSTRAINT fk_role_permissions_perm FOREIGN KEY (permission_id) REFERENCES permissions(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id               CHAR(36)     NOT NULL PRIMARY KEY,
		token_hash       CHAR(64)     NOT NULL,
		user_id          CHAR(36)     NOT NULL,
		device_id        VARCHAR(128) NOT NULL,
		device_name      VARCHAR(128) NULL,
		user_agent       VARCHAR(512) NULL,
		created_by_ip    VARCHAR(45)  NULL,
		created_at       DATETIME     NOT NULL,
		expires_at       DATETIME     NOT NULL,
		used_at          DATETIME     NULL,
		revoked_at       DATETIME     NULL,
		revoked_by_ip    VARCHAR(45)  NULL,
		replaced_by_hash CHAR(64)     NULL,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_user_device (user_id, device_id),
		KEY idx_refresh_tokens_expires (expires_at),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the auth schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
