/*
Copyright 2018 the cdws authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package store is the sqlite persistence layer of cdws. Every REST
// resource maps to one table here; the API layer never touches SQL
// directly.
package store

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at the given datasource
// name and ensures the schema exists. Use ":memory:" for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open database %q", dsn)
	}
	// Serialized access keeps sqlite happy under the request mux.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't initialize schema")
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS project_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, key)
	);

	CREATE TABLE IF NOT EXISTS test_plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		hidden INTEGER NOT NULL DEFAULT 1,
		main INTEGER NOT NULL DEFAULT 0,
		show_in_summary INTEGER NOT NULL DEFAULT 0,
		show_in_twodays INTEGER NOT NULL DEFAULT 0,
		filter TEXT NOT NULL DEFAULT '',
		variable_name TEXT NOT NULL DEFAULT '',
		variable_value_regexp TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS launches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_plan_id INTEGER NOT NULL REFERENCES test_plans(id),
		started_by TEXT NOT NULL DEFAULT '',
		state INTEGER NOT NULL DEFAULT 0,
		passed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		parameters TEXT NOT NULL DEFAULT '',
		tasks TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL,
		finished TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_launches_test_plan ON launches(test_plan_id);

	CREATE TABLE IF NOT EXISTS builds (
		launch_id INTEGER PRIMARY KEY REFERENCES launches(id),
		version TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		last_commits TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS launch_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_plan_id INTEGER NOT NULL REFERENCES test_plans(id),
		name TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		type INTEGER NOT NULL DEFAULT 0,
		timeout INTEGER NOT NULL DEFAULT 300
	);

	CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		launch_id INTEGER NOT NULL REFERENCES launches(id),
		name TEXT NOT NULL,
		suite TEXT NOT NULL DEFAULT '',
		state INTEGER NOT NULL DEFAULT 0,
		failure_reason TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		launch_item_id INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_test_results_launch ON test_results(launch_id);

	CREATE TABLE IF NOT EXISTS bugs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		regexp TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL,
		updated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		updated TEXT NOT NULL,
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comment TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		object_pk TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		schedule TEXT NOT NULL,
		handler TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		weight REAL NOT NULL DEFAULT 1,
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS metric_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		metric_id INTEGER NOT NULL REFERENCES metrics(id),
		value TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS crontab_schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		minute TEXT NOT NULL DEFAULT '*',
		hour TEXT NOT NULL DEFAULT '*',
		day_of_week TEXT NOT NULL DEFAULT '*',
		day_of_month TEXT NOT NULL DEFAULT '*',
		month_of_year TEXT NOT NULL DEFAULT '*',
		UNIQUE(minute, hour, day_of_week, day_of_month, month_of_year)
	);

	CREATE TABLE IF NOT EXISTS periodic_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		task TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '[]',
		crontab_id INTEGER NOT NULL REFERENCES crontab_schedules(id),
		enabled INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := s.db.Exec(schema)
	return errors.WithStack(err)
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
