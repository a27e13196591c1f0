package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var DB *sql.DB

// Init initializes the database connection and schema
func Init(path string) error {
	var err error

	if err = ensureDirectory(path); err != nil {
		return err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	DB, err = sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	enableWAL()
	return CreateSchema(DB)
}

func ensureDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	return nil
}

func enableWAL() {
	if _, err := DB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("⚠️  Could not enable WAL mode: %v", err)
	}
}

// CreateSchema creates all tables if they don't exist. Exported so tests
// can initialize an in-memory database with the same layout.
func CreateSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL DEFAULT 'editor',
		last_login DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS extensions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT UNIQUE NOT NULL,
		name TEXT,
		version TEXT,
		last_sync DATETIME,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		token TEXT UNIQUE NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_api_tokens_extension ON api_tokens(extension_id);
	CREATE INDEX IF NOT EXISTS idx_api_tokens_expires ON api_tokens(expires_at);

	CREATE TABLE IF NOT EXISTS url_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern TEXT NOT NULL,
		action TEXT NOT NULL,
		target TEXT,
		description TEXT,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS css_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_pattern TEXT NOT NULL,
		selector TEXT NOT NULL,
		action TEXT NOT NULL,
		css_properties TEXT,
		description TEXT,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cookie_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		name TEXT NOT NULL,
		action TEXT NOT NULL,
		description TEXT,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS managed_extensions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT UNIQUE NOT NULL,
		extension_name TEXT NOT NULL,
		extension_version TEXT,
		description TEXT,
		install_type TEXT DEFAULT 'normal',
		is_enabled INTEGER DEFAULT 1,
		backend_controlled INTEGER DEFAULT 0,
		discovery_method TEXT DEFAULT 'api_sync',
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_sync DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_managed_backend ON managed_extensions(backend_controlled);

	CREATE TABLE IF NOT EXISTS extension_management_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		action TEXT NOT NULL,
		old_state INTEGER,
		new_state INTEGER,
		triggered_by TEXT DEFAULT 'system',
		source TEXT DEFAULT 'backend',
		details TEXT,
		user_ip TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_mgmt_log_extension ON extension_management_log(extension_id);
	CREATE INDEX IF NOT EXISTS idx_mgmt_log_created ON extension_management_log(created_at);

	CREATE TABLE IF NOT EXISTS extension_conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		conflict_extension_id TEXT NOT NULL,
		conflict_extension_name TEXT NOT NULL,
		detection_method TEXT NOT NULL DEFAULT 'automatic',
		violation_reported INTEGER DEFAULT 0,
		resolved_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_extension ON extension_conflicts(extension_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_conflict_ext ON extension_conflicts(conflict_extension_id);

	CREATE TABLE IF NOT EXISTS conflicting_extensions_blacklist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT UNIQUE NOT NULL,
		extension_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'other',
		detection_pattern TEXT,
		severity TEXT NOT NULL DEFAULT 'medium',
		action_required TEXT NOT NULL DEFAULT 'block',
		is_active INTEGER DEFAULT 1,
		added_by TEXT DEFAULT 'system',
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS violation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		user_ip TEXT,
		user_agent TEXT,
		violation_type TEXT NOT NULL,
		violation_details TEXT,
		conflicts_detected INTEGER DEFAULT 0,
		action_taken TEXT,
		resolved INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_violations_extension ON violation_logs(extension_id);
	CREATE INDEX IF NOT EXISTS idx_violations_type ON violation_logs(violation_type);
	CREATE INDEX IF NOT EXISTS idx_violations_created ON violation_logs(created_at);

	CREATE TABLE IF NOT EXISTS extension_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_name TEXT UNIQUE NOT NULL,
		policy_value TEXT NOT NULL,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}
