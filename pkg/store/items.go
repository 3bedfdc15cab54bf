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

	"github.com/pkg/errors"
)

// CreateLaunchItem inserts a launch item.
func (s *Store) CreateLaunchItem(li *LaunchItem) (*LaunchItem, error) {
	res, err := s.db.Exec(
		`INSERT INTO launch_items (test_plan_id, name, command, type, timeout) VALUES (?, ?, ?, ?, ?)`,
		li.TestPlan, li.Name, li.Command, li.Type, li.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create launch item")
	}
	id, _ := res.LastInsertId()
	return s.LaunchItem(id)
}

// LaunchItem fetches a single launch item.
func (s *Store) LaunchItem(id int64) (*LaunchItem, error) {
	li := &LaunchItem{}
	err := s.db.QueryRow(
		`SELECT id, test_plan_id, name, command, type, timeout FROM launch_items WHERE id = ?`,
		id).Scan(&li.ID, &li.TestPlan, &li.Name, &li.Command, &li.Type, &li.Timeout)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return li, errors.WithStack(err)
}

// LaunchItems lists items, optionally scoped to one test plan.
func (s *Store) LaunchItems(testPlanID int64) ([]LaunchItem, error) {
	q := `SELECT id, test_plan_id, name, command, type, timeout FROM launch_items`
	args := []interface{}{}
	if testPlanID != 0 {
		q += ` WHERE test_plan_id = ?`
		args = append(args, testPlanID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []LaunchItem{}
	for rows.Next() {
		var li LaunchItem
		if err := rows.Scan(&li.ID, &li.TestPlan, &li.Name, &li.Command, &li.Type, &li.Timeout); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, li)
	}
	return out, errors.WithStack(rows.Err())
}

// UpdateLaunchItem persists the full row.
func (s *Store) UpdateLaunchItem(li *LaunchItem) error {
	_, err := s.db.Exec(
		`UPDATE launch_items SET name = ?, command = ?, type = ?, timeout = ? WHERE id = ?`,
		li.Name, li.Command, li.Type, li.Timeout, li.ID)
	return errors.Wrapf(err, "couldn't update launch item %d", li.ID)
}

// DeleteLaunchItem removes a launch item.
func (s *Store) DeleteLaunchItem(id int64) error {
	_, err := s.db.Exec(`DELETE FROM launch_items WHERE id = ?`, id)
	return errors.WithStack(err)
}
