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

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const metricColumns = `id, project_id, name, schedule, handler, query, weight`

func scanMetric(row interface{ Scan(...interface{}) error }) (*Metric, error) {
	m := &Metric{}
	err := row.Scan(&m.ID, &m.Project, &m.Name, &m.Schedule, &m.Handler, &m.Query, &m.Weight)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, errors.WithStack(err)
}

// CreateMetric inserts a metric. Name uniqueness within the project is
// enforced by the caller so the API can produce its specific message.
func (s *Store) CreateMetric(m *Metric) (*Metric, error) {
	res, err := s.db.Exec(
		`INSERT INTO metrics (project_id, name, schedule, handler, query, weight) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Project, m.Name, m.Schedule, m.Handler, m.Query, m.Weight)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create metric %q", m.Name)
	}
	id, _ := res.LastInsertId()
	return s.Metric(id)
}

// Metric fetches a single metric.
func (s *Store) Metric(id int64) (*Metric, error) {
	return scanMetric(s.db.QueryRow(`SELECT `+metricColumns+` FROM metrics WHERE id = ?`, id))
}

// MetricByName fetches a metric by project and name.
func (s *Store) MetricByName(projectID int64, name string) (*Metric, error) {
	return scanMetric(s.db.QueryRow(
		`SELECT `+metricColumns+` FROM metrics WHERE project_id = ? AND name = ?`, projectID, name))
}

// Metrics lists all metrics.
func (s *Store) Metrics() ([]Metric, error) {
	rows, err := s.db.Query(`SELECT ` + metricColumns + ` FROM metrics ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Metric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, errors.WithStack(rows.Err())
}

// UpdateMetric persists the full metric row.
func (s *Store) UpdateMetric(m *Metric) error {
	_, err := s.db.Exec(
		`UPDATE metrics SET name = ?, schedule = ?, handler = ?, query = ?, weight = ? WHERE id = ?`,
		m.Name, m.Schedule, m.Handler, m.Query, m.Weight, m.ID)
	return errors.Wrapf(err, "couldn't update metric %d", m.ID)
}

// DeleteMetric removes the metric, its values and its periodic task.
// Crontab rows are shared and stay behind; the cleanup job sweeps the ones
// nothing references anymore.
func (s *Store) DeleteMetric(id int64) error {
	for _, q := range []string{
		`DELETE FROM metric_values WHERE metric_id = ?`,
		`DELETE FROM periodic_tasks WHERE name = 'metric-' || ?`,
		`DELETE FROM metrics WHERE id = ?`,
	} {
		if _, err := s.db.Exec(q, id); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// AddMetricValue stores one computed sample.
func (s *Store) AddMetricValue(metricID int64, value string) (*MetricValue, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO metric_values (metric_id, value, created) VALUES (?, ?, ?)`,
		metricID, value, formatTime(now))
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't store value for metric %d", metricID)
	}
	id, _ := res.LastInsertId()
	return &MetricValue{ID: id, Metric: metricID, Value: value, Created: now}, nil
}

// MetricValues lists the stored samples of a metric, oldest first.
func (s *Store) MetricValues(metricID int64) ([]MetricValue, error) {
	rows, err := s.db.Query(
		`SELECT id, metric_id, value, created FROM metric_values WHERE metric_id = ? ORDER BY id`,
		metricID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []MetricValue{}
	for rows.Next() {
		var v MetricValue
		var created string
		if err := rows.Scan(&v.ID, &v.Metric, &v.Value, &created); err != nil {
			return nil, errors.WithStack(err)
		}
		v.Created = parseTime(created)
		out = append(out, v)
	}
	return out, errors.WithStack(rows.Err())
}

// ParseCrontab splits a five-field crontab line into a CrontabSchedule.
func ParseCrontab(spec string) (*CrontabSchedule, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, errors.Errorf("bad crontab spec %q, expect 5 fields", spec)
	}
	return &CrontabSchedule{
		Minute:      fields[0],
		Hour:        fields[1],
		DayOfMonth:  fields[2],
		MonthOfYear: fields[3],
		DayOfWeek:   fields[4],
	}, nil
}

// GetOrCreateCrontab returns the shared schedule row for the given crontab
// line, creating it when the exact spec is seen for the first time.
func (s *Store) GetOrCreateCrontab(spec string) (*CrontabSchedule, error) {
	c, err := ParseCrontab(spec)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(
		`SELECT id FROM crontab_schedules
		 WHERE minute = ? AND hour = ? AND day_of_week = ? AND day_of_month = ? AND month_of_year = ?`,
		c.Minute, c.Hour, c.DayOfWeek, c.DayOfMonth, c.MonthOfYear)
	err = row.Scan(&c.ID)
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.WithStack(err)
	}

	res, err := s.db.Exec(
		`INSERT INTO crontab_schedules (minute, hour, day_of_week, day_of_month, month_of_year)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Minute, c.Hour, c.DayOfWeek, c.DayOfMonth, c.MonthOfYear)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create crontab row for %q", spec)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

// Crontabs lists all schedule rows.
func (s *Store) Crontabs() ([]CrontabSchedule, error) {
	rows, err := s.db.Query(
		`SELECT id, minute, hour, day_of_week, day_of_month, month_of_year FROM crontab_schedules ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []CrontabSchedule{}
	for rows.Next() {
		var c CrontabSchedule
		if err := rows.Scan(&c.ID, &c.Minute, &c.Hour, &c.DayOfWeek, &c.DayOfMonth, &c.MonthOfYear); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, c)
	}
	return out, errors.WithStack(rows.Err())
}

// Crontab fetches a schedule row.
func (s *Store) Crontab(id int64) (*CrontabSchedule, error) {
	c := &CrontabSchedule{}
	err := s.db.QueryRow(
		`SELECT id, minute, hour, day_of_week, day_of_month, month_of_year FROM crontab_schedules WHERE id = ?`,
		id).Scan(&c.ID, &c.Minute, &c.Hour, &c.DayOfWeek, &c.DayOfMonth, &c.MonthOfYear)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, errors.WithStack(err)
}

// SweepUnusedCrontabs removes schedule rows no periodic task references.
func (s *Store) SweepUnusedCrontabs() (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM crontab_schedules
		 WHERE id NOT IN (SELECT crontab_id FROM periodic_tasks)`)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MetricTaskName is the periodic task name reserved for a metric.
func MetricTaskName(metricID int64) string {
	return fmt.Sprintf("metric-%d", metricID)
}

// UpsertPeriodicTask creates or rebinds the named periodic task.
func (s *Store) UpsertPeriodicTask(name, task, args string, crontabID int64) (*PeriodicTask, error) {
	_, err := s.db.Exec(
		`INSERT INTO periodic_tasks (name, task, args, crontab_id, enabled) VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET
			task = excluded.task, args = excluded.args, crontab_id = excluded.crontab_id`,
		name, task, args, crontabID)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't save periodic task %q", name)
	}
	return s.PeriodicTaskByName(name)
}

// PeriodicTaskByName fetches one periodic task.
func (s *Store) PeriodicTaskByName(name string) (*PeriodicTask, error) {
	pt := &PeriodicTask{}
	err := s.db.QueryRow(
		`SELECT id, name, task, args, crontab_id, enabled FROM periodic_tasks WHERE name = ?`,
		name).Scan(&pt.ID, &pt.Name, &pt.Task, &pt.Args, &pt.Crontab, &pt.Enabled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return pt, errors.WithStack(err)
}

// PeriodicTasks lists all periodic tasks.
func (s *Store) PeriodicTasks() ([]PeriodicTask, error) {
	rows, err := s.db.Query(
		`SELECT id, name, task, args, crontab_id, enabled FROM periodic_tasks ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []PeriodicTask{}
	for rows.Next() {
		var pt PeriodicTask
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Task, &pt.Args, &pt.Crontab, &pt.Enabled); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, pt)
	}
	return out, errors.WithStack(rows.Err())
}
