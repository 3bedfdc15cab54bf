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
	"time"

	"github.com/pkg/errors"
)

func scanStage(row interface{ Scan(...interface{}) error }) (*Stage, error) {
	st := &Stage{}
	var updated string
	err := row.Scan(&st.ID, &st.Project, &st.Name, &st.State, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	st.Updated = parseTime(updated)
	return st, nil
}

// Stage fetches a single stage.
func (s *Store) Stage(id int64) (*Stage, error) {
	return scanStage(s.db.QueryRow(
		`SELECT id, project_id, name, state, updated FROM stages WHERE id = ?`, id))
}

// Stages lists all stages.
func (s *Store) Stages() ([]Stage, error) {
	rows, err := s.db.Query(`SELECT id, project_id, name, state, updated FROM stages ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Stage{}
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, errors.WithStack(rows.Err())
}

// SetStageState creates the stage if needed and records its latest state.
// CI callbacks identify stages by project and name.
func (s *Store) SetStageState(projectID int64, name, state string) (*Stage, error) {
	now := formatTime(time.Now())
	_, err := s.db.Exec(
		`INSERT INTO stages (project_id, name, state, updated) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id, name) DO UPDATE SET state = excluded.state, updated = excluded.updated`,
		projectID, name, state, now)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't record stage %q", name)
	}
	return scanStage(s.db.QueryRow(
		`SELECT id, project_id, name, state, updated FROM stages WHERE project_id = ? AND name = ?`,
		projectID, name))
}

// UpdateStage persists the name and state of an existing stage.
func (s *Store) UpdateStage(st *Stage) error {
	res, err := s.db.Exec(
		`UPDATE stages SET name = ?, state = ?, updated = ? WHERE id = ?`,
		st.Name, st.State, formatTime(time.Now()), st.ID)
	if err != nil {
		return errors.Wrapf(err, "couldn't update stage %d", st.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
