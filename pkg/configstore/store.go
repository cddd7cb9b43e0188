package configstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed configuration repository. It owns devices,
// data_points, alarm_rules, virtual_points and alarm_occurrences; every
// read method returns plain pkg/model values so callers never see a
// *sql.Rows.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (and migrates) a SQLite database at path. Use ":memory:" for
// an ephemeral store, e.g. in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open configstore: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure configstore: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate configstore: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		protocol TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		config_json TEXT NOT NULL DEFAULT '{}',
		polling_interval_ms INTEGER NOT NULL,
		connection_timeout_ms INTEGER NOT NULL,
		read_timeout_ms INTEGER NOT NULL,
		write_timeout_ms INTEGER NOT NULL,
		max_retry_count INTEGER NOT NULL DEFAULT 0,
		retry_interval_ms INTEGER NOT NULL,
		backoff_multiplier REAL NOT NULL DEFAULT 1.0,
		backoff_time_ms INTEGER NOT NULL,
		max_backoff_time_ms INTEGER NOT NULL,
		keep_alive_enabled INTEGER NOT NULL DEFAULT 0,
		keep_alive_interval_s INTEGER NOT NULL DEFAULT 0,
		keep_alive_timeout_s INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS data_points (
		id INTEGER PRIMARY KEY,
		device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		data_type TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		scaling_factor REAL NOT NULL DEFAULT 1.0,
		scaling_offset REAL NOT NULL DEFAULT 0.0,
		min_value REAL,
		max_value REAL,
		deadband REAL NOT NULL DEFAULT 0.0,
		writable INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		protocol_params_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_data_points_device_id ON data_points(device_id);

	CREATE TABLE IF NOT EXISTS alarm_rules (
		id INTEGER PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		target_type TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		high_high REAL,
		high REAL NOT NULL DEFAULT 0,
		low REAL NOT NULL DEFAULT 0,
		low_low REAL,
		deadband REAL NOT NULL DEFAULT 0,
		trigger_condition TEXT NOT NULL DEFAULT '',
		condition_script TEXT NOT NULL DEFAULT '',
		message_template TEXT NOT NULL DEFAULT '',
		message_script TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'INFO',
		priority INTEGER NOT NULL DEFAULT 0,
		auto_clear INTEGER NOT NULL DEFAULT 1,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_alarm_rules_target ON alarm_rules(target_type, target_id);

	CREATE TABLE IF NOT EXISTS virtual_points (
		id INTEGER PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		formula TEXT NOT NULL,
		trigger TEXT NOT NULL,
		interval_ms INTEGER NOT NULL DEFAULT 0,
		error_handling TEXT NOT NULL,
		data_type TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS virtual_point_inputs (
		virtual_point_id INTEGER NOT NULL REFERENCES virtual_points(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		source_point_id INTEGER NOT NULL,
		is_virtual INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_vp_inputs_vp_id ON virtual_point_inputs(virtual_point_id);

	CREATE TABLE IF NOT EXISTS alarm_occurrences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id INTEGER NOT NULL,
		correlation_id TEXT NOT NULL DEFAULT '',
		rule_id INTEGER NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		occurrence_time DATETIME NOT NULL,
		trigger_value REAL NOT NULL,
		state TEXT NOT NULL,
		severity TEXT NOT NULL,
		cleared_time DATETIME,
		ack_time DATETIME,
		context_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_alarm_occurrences_state ON alarm_occurrences(state);
	CREATE INDEX IF NOT EXISTS idx_alarm_occurrences_rule_target ON alarm_occurrences(rule_id, target_id);

	CREATE TABLE IF NOT EXISTS current_values (
		point_id INTEGER PRIMARY KEY,
		value_json TEXT NOT NULL,
		quality INTEGER NOT NULL,
		timestamp_ms INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
