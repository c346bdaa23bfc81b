package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		menu_key VARCHAR(20) NOT NULL,
		position INT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_departments_menu_key (menu_key)
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(150) NOT NULL,
		all_departments TINYINT(1) NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS admin_departments (
		admin_id INT NOT NULL,
		department_id INT NOT NULL,
		PRIMARY KEY (admin_id, department_id),
		KEY idx_admin_departments_department (department_id)
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(150) NOT NULL,
		phone VARCHAR(20) NOT NULL,
		email VARCHAR(150) NULL,
		KEY idx_clients_phone (phone)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id CHAR(36) PRIMARY KEY,
		normalized_phone VARCHAR(20) NOT NULL,
		live_key VARCHAR(20) NULL,
		client_id INT NULL,
		admin_id INT NULL,
		department_id INT NULL,
		state VARCHAR(32) NOT NULL,
		menu_attempts INT NOT NULL DEFAULT 0,
		needs_attention TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		ended_at DATETIME(6) NULL,
		UNIQUE KEY uq_conversations_live (live_key),
		KEY idx_conversations_phone (normalized_phone),
		KEY idx_conversations_state_updated (state, updated_at)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id CHAR(36) NOT NULL,
		conversation_id CHAR(36) NOT NULL,
		admin_id INT NULL,
		from_address VARCHAR(64) NOT NULL,
		to_address VARCHAR(64) NOT NULL,
		content TEXT NOT NULL,
		direction VARCHAR(16) NOT NULL,
		message_type VARCHAR(32) NOT NULL,
		delivery_status VARCHAR(16) NULL,
		provider_message_id VARCHAR(128) NULL,
		failure_reason VARCHAR(255) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_messages_id (id),
		UNIQUE KEY uq_messages_provider (provider_message_id),
		KEY idx_messages_conversation (conversation_id, seq),
		CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations (id)
	)`,
	`CREATE TABLE IF NOT EXISTS support_messages (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id CHAR(36) NOT NULL,
		client_id INT NOT NULL,
		admin_id INT NULL,
		from_client TINYINT(1) NOT NULL,
		content TEXT NOT NULL,
		is_read TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_support_messages_id (id),
		KEY idx_support_messages_client (client_id, seq)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		menu_key TEXT NOT NULL UNIQUE,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		all_departments INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS admin_departments (
		admin_id INTEGER NOT NULL,
		department_id INTEGER NOT NULL,
		PRIMARY KEY (admin_id, department_id)
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_phone ON clients (phone)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		normalized_phone TEXT NOT NULL,
		live_key TEXT NULL UNIQUE,
		client_id INTEGER NULL,
		admin_id INTEGER NULL,
		department_id INTEGER NULL,
		state TEXT NOT NULL,
		menu_attempts INTEGER NOT NULL DEFAULT 0,
		needs_attention INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		ended_at DATETIME NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_phone ON conversations (normalized_phone)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_state_updated ON conversations (state, updated_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		admin_id INTEGER NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		content TEXT NOT NULL,
		direction TEXT NOT NULL,
		message_type TEXT NOT NULL,
		delivery_status TEXT NULL,
		provider_message_id TEXT NULL UNIQUE,
		failure_reason TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, seq)`,
	`CREATE TABLE IF NOT EXISTS support_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		client_id INTEGER NOT NULL,
		admin_id INTEGER NULL,
		from_client INTEGER NOT NULL,
		content TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_support_messages_client ON support_messages (client_id, seq)`,
}

// Migrate creates the tables this service owns plus the reference tables it
// reads. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var statements []string
	switch strings.ToLower(driver) {
	case DriverMySQL:
		statements = mysqlSchema
	case DriverSQLite:
		statements = sqliteSchema
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error running migration: %w", err)
		}
	}
	return nil
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
