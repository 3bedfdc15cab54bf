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
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CreateLaunch inserts a launch in state Initialized.
func (s *Store) CreateLaunch(testPlanID int64, startedBy string) (*Launch, error) {
	res, err := s.db.Exec(
		`INSERT INTO launches (test_plan_id, started_by, state, created) VALUES (?, ?, ?, ?)`,
		testPlanID, startedBy, Initialized, formatTime(time.Now()))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create launch")
	}
	id, _ := res.LastInsertId()
	return s.Launch(id)
}

const launchColumns = `id, test_plan_id, started_by, state, passed, failed, skipped, blocked, total, duration, parameters, tasks, created, finished`

func (s *Store) scanLaunch(row interface{ Scan(...interface{}) error }) (*Launch, error) {
	l := &Launch{}
	var params, tasks, created string
	var finished sql.NullString
	err := row.Scan(&l.ID, &l.TestPlan, &l.StartedBy, &l.State,
		&l.Counts.Passed, &l.Counts.Failed, &l.Counts.Skipped, &l.Counts.Blocked,
		&l.Counts.Total, &l.Duration, &params, &tasks, &created, &finished)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if params != "" {
		if err := json.Unmarshal([]byte(params), &l.Parameters); err != nil {
			return nil, errors.Wrapf(err, "corrupt parameters on launch %d", l.ID)
		}
	}
	l.Tasks = []string{}
	if tasks != "" {
		if err := json.Unmarshal([]byte(tasks), &l.Tasks); err != nil {
			return nil, errors.Wrapf(err, "corrupt task list on launch %d", l.ID)
		}
	}
	l.Created = parseTime(created)
	l.Finished = parseNullTime(finished)
	return l, nil
}

// Launch fetches a launch with its build attached.
func (s *Store) Launch(id int64) (*Launch, error) {
	l, err := s.scanLaunch(s.db.QueryRow(
		`SELECT `+launchColumns+` FROM launches WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if l.Build, err = s.launchBuild(l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) launchBuild(launchID int64) (*Build, error) {
	b := &Build{}
	var commits string
	err := s.db.QueryRow(
		`SELECT launch_id, version, hash, branch, last_commits FROM builds WHERE launch_id = ?`,
		launchID).Scan(&b.Launch, &b.Version, &b.Hash, &b.Branch, &commits)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b.LastCommits = []string{}
	if commits != "" {
		if err := json.Unmarshal([]byte(commits), &b.LastCommits); err != nil {
			return nil, errors.Wrapf(err, "corrupt last_commits on launch %d", launchID)
		}
	}
	return b, nil
}

// SaveBuild creates or replaces the build of a launch.
func (s *Store) SaveBuild(b *Build) error {
	commits, err := json.Marshal(b.LastCommits)
	if err != nil {
		return errors.WithStack(err)
	}
	if b.LastCommits == nil {
		commits = []byte("[]")
	}
	_, err = s.db.Exec(
		`INSERT INTO builds (launch_id, version, hash, branch, last_commits) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(launch_id) DO UPDATE SET
			version = excluded.version, hash = excluded.hash,
			branch = excluded.branch, last_commits = excluded.last_commits`,
		b.Launch, b.Version, b.Hash, b.Branch, string(commits))
	return errors.Wrapf(err, "couldn't save build for launch %d", b.Launch)
}

// UpdateLaunch persists the mutable launch fields.
func (s *Store) UpdateLaunch(l *Launch) error {
	params := ""
	if l.Parameters != nil {
		raw, err := json.Marshal(l.Parameters)
		if err != nil {
			return errors.WithStack(err)
		}
		params = string(raw)
	}
	tasks := ""
	if len(l.Tasks) > 0 {
		raw, err := json.Marshal(l.Tasks)
		if err != nil {
			return errors.WithStack(err)
		}
		tasks = string(raw)
	}
	var finished interface{}
	if l.Finished != nil {
		finished = formatTime(*l.Finished)
	}
	_, err := s.db.Exec(
		`UPDATE launches SET started_by = ?, state = ?, passed = ?, failed = ?,
			skipped = ?, blocked = ?, total = ?, duration = ?, parameters = ?,
			tasks = ?, finished = ? WHERE id = ?`,
		l.StartedBy, l.State, l.Counts.Passed, l.Counts.Failed, l.Counts.Skipped,
		l.Counts.Blocked, l.Counts.Total, l.Duration, params, tasks, finished, l.ID)
	return errors.Wrapf(err, "couldn't update launch %d", l.ID)
}

// DeleteLaunch removes a launch together with its build and results.
func (s *Store) DeleteLaunch(id int64) error {
	for _, q := range []string{
		`DELETE FROM test_results WHERE launch_id = ?`,
		`DELETE FROM builds WHERE launch_id = ?`,
		`DELETE FROM launches WHERE id = ?`,
	} {
		if _, err := s.db.Exec(q, id); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// CalculateCounts recomputes the stored state counters of a launch from its
// test results. Duration is intentionally left alone: it is either summed
// during report ingestion or patched explicitly.
func (s *Store) CalculateCounts(launchID int64) (*Counts, error) {
	rows, err := s.db.Query(
		`SELECT state, COUNT(*) FROM test_results WHERE launch_id = ? GROUP BY state`,
		launchID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	c := Counts{}
	for rows.Next() {
		var state, n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, errors.WithStack(err)
		}
		switch state {
		case Passed:
			c.Passed = n
		case Failed:
			c.Failed = n
		case Skipped:
			c.Skipped = n
		case Blocked:
			c.Blocked = n
		}
		c.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = s.db.Exec(
		`UPDATE launches SET passed = ?, failed = ?, skipped = ?, blocked = ?, total = ? WHERE id = ?`,
		c.Passed, c.Failed, c.Skipped, c.Blocked, c.Total, launchID)
	return &c, errors.WithStack(err)
}

// LaunchFilter narrows Launches listings. Zero values mean no constraint.
type LaunchFilter struct {
	TestPlan     int64
	TestPlanIDs  []int64
	BuildVersion string
	BuildBranch  string
	BuildHash    string
	// BuildHashIn matches a launch when its build hash, or any of its
	// build's last commits, is in the list.
	BuildHashIn []string
	// Days keeps launches created within the last N days. The pointer
	// distinguishes "unset" from 0 (which selects nothing).
	Days *int
	From *time.Time
	To   *time.Time // exclusive
}

// Launches lists launches matching the filter, newest last.
func (s *Store) Launches(f LaunchFilter) ([]Launch, error) {
	where, args := []string{}, []interface{}{}
	join := ""

	if f.TestPlan != 0 {
		where = append(where, `launches.test_plan_id = ?`)
		args = append(args, f.TestPlan)
	}
	if len(f.TestPlanIDs) > 0 {
		where = append(where, `launches.test_plan_id IN `+placeholders(len(f.TestPlanIDs)))
		args = append(args, int64Args(f.TestPlanIDs)...)
	}
	if f.BuildVersion != "" || f.BuildBranch != "" || f.BuildHash != "" {
		join = ` JOIN builds ON builds.launch_id = launches.id`
		if f.BuildVersion != "" {
			where = append(where, `builds.version = ?`)
			args = append(args, f.BuildVersion)
		}
		if f.BuildBranch != "" {
			where = append(where, `builds.branch = ?`)
			args = append(args, f.BuildBranch)
		}
		if f.BuildHash != "" {
			where = append(where, `builds.hash = ?`)
			args = append(args, f.BuildHash)
		}
	}
	if f.Days != nil {
		cutoff := time.Now().AddDate(0, 0, -*f.Days)
		where = append(where, `launches.created >= ?`)
		args = append(args, formatTime(cutoff))
	}
	if f.From != nil {
		where = append(where, `launches.created >= ?`)
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, `launches.created < ?`)
		args = append(args, formatTime(*f.To))
	}

	q := `SELECT ` + launchColumnsPrefixed + ` FROM launches` + join
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY launches.id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Launch{}
	for rows.Next() {
		l, err := s.scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	for i := range out {
		if out[i].Build, err = s.launchBuild(out[i].ID); err != nil {
			return nil, err
		}
	}

	if len(f.BuildHashIn) > 0 {
		out = filterByHashes(out, f.BuildHashIn)
	}
	return out, nil
}

var launchColumnsPrefixed = "launches." + strings.Replace(launchColumns, ", ", ", launches.", -1)

// filterByHashes keeps launches whose build hash or last commits intersect
// the wanted set. last_commits is a JSON blob, so the match happens here
// rather than in SQL.
func filterByHashes(launches []Launch, hashes []string) []Launch {
	want := map[string]bool{}
	for _, h := range hashes {
		want[h] = true
	}
	out := []Launch{}
	for _, l := range launches {
		if l.Build == nil {
			continue
		}
		match := want[l.Build.Hash]
		for _, c := range l.Build.LastCommits {
			match = match || want[c]
		}
		if match {
			out = append(out, l)
		}
	}
	return out
}

// ExpiredLaunchIDs returns launches that finished before the cutoff.
func (s *Store) ExpiredLaunchIDs(cutoff time.Time) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT id FROM launches WHERE finished IS NOT NULL AND finished < ?`,
		formatTime(cutoff))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, id)
	}
	return out, errors.WithStack(rows.Err())
}
