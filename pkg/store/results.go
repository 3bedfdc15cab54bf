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
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const testResultColumns = `id, launch_id, name, suite, state, failure_reason, duration, launch_item_id`

// CreateTestResults bulk-inserts test results.
func (s *Store) CreateTestResults(results []TestResult) ([]TestResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO test_results (launch_id, name, suite, state, failure_reason, duration, launch_item_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer stmt.Close()

	out := make([]TestResult, 0, len(results))
	for _, r := range results {
		res, err := stmt.Exec(r.Launch, r.Name, r.Suite, r.State, r.FailureReason, r.Duration, r.LaunchItemID)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't insert result %q", r.Name)
		}
		r.ID, _ = res.LastInsertId()
		out = append(out, r)
	}
	return out, errors.WithStack(tx.Commit())
}

// TestResult fetches a single test result.
func (s *Store) TestResult(id int64) (*TestResult, error) {
	r := &TestResult{}
	err := s.db.QueryRow(
		`SELECT `+testResultColumns+` FROM test_results WHERE id = ?`, id).
		Scan(&r.ID, &r.Launch, &r.Name, &r.Suite, &r.State, &r.FailureReason, &r.Duration, &r.LaunchItemID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, errors.WithStack(err)
}

// TestResultFilter narrows TestResults listings.
type TestResultFilter struct {
	Launch    int64
	LaunchIDs []int64
	// State is a pointer because Passed is 0.
	State  *int
	States []int
	// Search keeps results whose name contains the substring.
	Search string
	// NegativeSearch keeps results whose failure reason does NOT match
	// the regexp. RE2 has no lookaround, so the negation lives here
	// instead of in the expression.
	NegativeSearch string
	// History selects the run history of the given test result: every
	// result with the same name and suite across launches of the same
	// test plan.
	History int64
	Days    *int
}

// TestResults lists results matching the filter.
func (s *Store) TestResults(f TestResultFilter) ([]TestResult, error) {
	where, args := []string{}, []interface{}{}
	join := ""

	if f.History != 0 {
		seed, err := s.TestResult(f.History)
		if err != nil {
			return nil, err
		}
		seedLaunch, err := s.Launch(seed.Launch)
		if err != nil {
			return nil, err
		}
		join = ` JOIN launches ON launches.id = test_results.launch_id`
		where = append(where, `launches.test_plan_id = ?`, `test_results.name = ?`, `test_results.suite = ?`)
		args = append(args, seedLaunch.TestPlan, seed.Name, seed.Suite)
	}
	if f.Launch != 0 {
		where = append(where, `test_results.launch_id = ?`)
		args = append(args, f.Launch)
	}
	if len(f.LaunchIDs) > 0 {
		where = append(where, `test_results.launch_id IN `+placeholders(len(f.LaunchIDs)))
		args = append(args, int64Args(f.LaunchIDs)...)
	}
	if f.State != nil {
		where = append(where, `test_results.state = ?`)
		args = append(args, *f.State)
	}
	if len(f.States) > 0 {
		ph := placeholders(len(f.States))
		where = append(where, `test_results.state IN `+ph)
		for _, st := range f.States {
			args = append(args, st)
		}
	}
	if f.Search != "" {
		where = append(where, `test_results.name LIKE ?`)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Days != nil {
		if join == "" {
			join = ` JOIN launches ON launches.id = test_results.launch_id`
		}
		cutoff := time.Now().AddDate(0, 0, -*f.Days)
		where = append(where, `launches.created >= ?`)
		args = append(args, formatTime(cutoff))
	}

	q := `SELECT ` + prefixColumns("test_results", testResultColumns) + ` FROM test_results` + join
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY test_results.id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []TestResult{}
	for rows.Next() {
		var r TestResult
		if err := rows.Scan(&r.ID, &r.Launch, &r.Name, &r.Suite, &r.State,
			&r.FailureReason, &r.Duration, &r.LaunchItemID); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	if f.NegativeSearch != "" {
		re, err := regexp.Compile(f.NegativeSearch)
		if err != nil {
			return nil, errors.Wrapf(err, "bad search regexp %q", f.NegativeSearch)
		}
		kept := out[:0]
		for _, r := range out {
			if !re.MatchString(r.FailureReason) {
				kept = append(kept, r)
			}
		}
		out = kept
	}
	return out, nil
}

func prefixColumns(table, columns string) string {
	return table + "." + strings.Replace(columns, ", ", ", "+table+".", -1)
}

// ResultGroupCount is the number of results per launch item in one state.
type ResultGroupCount struct {
	LaunchItemID int64 `json:"launch_item_id"`
	Count        int   `json:"count"`
}

// GroupCountsByItem groups a launch's results by launch item for one state.
func (s *Store) GroupCountsByItem(launchID int64, state int) ([]ResultGroupCount, error) {
	rows, err := s.db.Query(
		`SELECT launch_item_id, COUNT(*) FROM test_results
		 WHERE launch_id = ? AND state = ? GROUP BY launch_item_id ORDER BY launch_item_id`,
		launchID, state)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []ResultGroupCount{}
	for rows.Next() {
		var g ResultGroupCount
		if err := rows.Scan(&g.LaunchItemID, &g.Count); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, g)
	}
	return out, errors.WithStack(rows.Err())
}

// DeleteResultsForLaunches drops all results of the given launches.
func (s *Store) DeleteResultsForLaunches(launchIDs []int64) (int64, error) {
	if len(launchIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.Exec(
		`DELETE FROM test_results WHERE launch_id IN `+placeholders(len(launchIDs)),
		int64Args(launchIDs)...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
