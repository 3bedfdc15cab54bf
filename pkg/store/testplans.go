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
	"strings"

	"github.com/pkg/errors"
)

const testPlanColumns = `id, project_id, name, description, hidden, main,
	show_in_summary, show_in_twodays, filter, variable_name, variable_value_regexp, owner`

func scanTestPlan(row interface{ Scan(...interface{}) error }) (*TestPlan, error) {
	tp := &TestPlan{}
	err := row.Scan(&tp.ID, &tp.Project, &tp.Name, &tp.Description, &tp.Hidden,
		&tp.Main, &tp.ShowInSummary, &tp.ShowInTwodays, &tp.Filter,
		&tp.VariableName, &tp.VariableValueRegexp, &tp.Owner)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tp, errors.WithStack(err)
}

// CreateTestPlan creates a test plan. A plan with the same name in the same
// project already existing is not an error: the existing plan is returned.
func (s *Store) CreateTestPlan(tp *TestPlan) (*TestPlan, error) {
	existing, err := scanTestPlan(s.db.QueryRow(
		`SELECT `+testPlanColumns+` FROM test_plans WHERE project_id = ? AND name = ?`,
		tp.Project, tp.Name))
	if err == nil {
		return existing, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return nil, err
	}

	res, err := s.db.Exec(
		`INSERT INTO test_plans (project_id, name, description, hidden, main,
			show_in_summary, show_in_twodays, filter, variable_name, variable_value_regexp, owner)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tp.Project, tp.Name, tp.Description, tp.Hidden, tp.Main,
		tp.ShowInSummary, tp.ShowInTwodays, tp.Filter,
		tp.VariableName, tp.VariableValueRegexp, tp.Owner)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create test plan %q", tp.Name)
	}
	id, _ := res.LastInsertId()
	return s.TestPlan(id)
}

// TestPlan fetches a single test plan.
func (s *Store) TestPlan(id int64) (*TestPlan, error) {
	return scanTestPlan(s.db.QueryRow(
		`SELECT `+testPlanColumns+` FROM test_plans WHERE id = ?`, id))
}

// UpdateTestPlan persists the full row. Callers apply partial updates to a
// fetched plan first.
func (s *Store) UpdateTestPlan(tp *TestPlan) error {
	_, err := s.db.Exec(
		`UPDATE test_plans SET name = ?, description = ?, hidden = ?, main = ?,
			show_in_summary = ?, show_in_twodays = ?, filter = ?,
			variable_name = ?, variable_value_regexp = ? WHERE id = ?`,
		tp.Name, tp.Description, tp.Hidden, tp.Main, tp.ShowInSummary,
		tp.ShowInTwodays, tp.Filter, tp.VariableName, tp.VariableValueRegexp, tp.ID)
	return errors.Wrapf(err, "couldn't update test plan %d", tp.ID)
}

// DeleteTestPlan removes a test plan row.
func (s *Store) DeleteTestPlan(id int64) error {
	_, err := s.db.Exec(`DELETE FROM test_plans WHERE id = ?`, id)
	return errors.WithStack(err)
}

// TestPlanFilter narrows TestPlans listings. Nil slices mean "no
// constraint"; that matches the API where an empty __in filter selects
// everything.
type TestPlanFilter struct {
	IDs        []int64
	ProjectIDs []int64
}

// TestPlans lists test plans matching the filter.
func (s *Store) TestPlans(f TestPlanFilter) ([]TestPlan, error) {
	where, args := []string{}, []interface{}{}
	if len(f.IDs) > 0 {
		where = append(where, `id IN `+placeholders(len(f.IDs)))
		args = append(args, int64Args(f.IDs)...)
	}
	if len(f.ProjectIDs) > 0 {
		where = append(where, `project_id IN `+placeholders(len(f.ProjectIDs)))
		args = append(args, int64Args(f.ProjectIDs)...)
	}

	q := `SELECT ` + testPlanColumns + ` FROM test_plans`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []TestPlan{}
	for rows.Next() {
		tp, err := scanTestPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tp)
	}
	return out, errors.WithStack(rows.Err())
}

// placeholders renders an "(?, ?, ?)" group for IN clauses.
func placeholders(n int) string {
	if n == 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func int64Args(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
