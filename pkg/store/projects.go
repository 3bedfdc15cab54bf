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

// CreateProject creates a project, or returns the existing one when the
// name is already taken. Project names are globally unique.
func (s *Store) CreateProject(name string) (*Project, error) {
	existing, err := s.ProjectByName(name)
	if err == nil {
		return existing, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return nil, err
	}

	res, err := s.db.Exec(`INSERT INTO projects (name) VALUES (?)`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create project %q", name)
	}
	id, _ := res.LastInsertId()
	return s.Project(id)
}

// Project fetches a project with its settings.
func (s *Store) Project(id int64) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRow(`SELECT id, name FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if p.Settings, err = s.projectSettings(p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ProjectByName fetches a project by its unique name.
func (s *Store) ProjectByName(name string) (*Project, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return s.Project(id)
}

// Projects lists all projects with their settings.
func (s *Store) Projects() ([]Project, error) {
	rows, err := s.db.Query(`SELECT id, name FROM projects ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	for i := range out {
		if out[i].Settings, err = s.projectSettings(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteProject removes a project row. Dependent rows are left to the
// cleanup job.
func (s *Store) DeleteProject(id int64) error {
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return errors.WithStack(err)
}

func (s *Store) projectSettings(projectID int64) ([]ProjectSetting, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, key, value FROM project_settings WHERE project_id = ? ORDER BY id`,
		projectID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []ProjectSetting{}
	for rows.Next() {
		var st ProjectSetting
		if err := rows.Scan(&st.ID, &st.Project, &st.Key, &st.Value); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, st)
	}
	return out, errors.WithStack(rows.Err())
}

// UpsertProjectSetting creates or replaces the setting with the given key.
func (s *Store) UpsertProjectSetting(projectID int64, key, value string) (*ProjectSetting, error) {
	_, err := s.db.Exec(
		`INSERT INTO project_settings (project_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value`,
		projectID, key, value)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't save setting %q", key)
	}

	st := &ProjectSetting{}
	err = s.db.QueryRow(
		`SELECT id, project_id, key, value FROM project_settings WHERE project_id = ? AND key = ?`,
		projectID, key).Scan(&st.ID, &st.Project, &st.Key, &st.Value)
	return st, errors.WithStack(err)
}

// DeleteProjectSetting removes the setting with the given key. Removing a
// key that does not exist is not an error.
func (s *Store) DeleteProjectSetting(projectID int64, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM project_settings WHERE project_id = ? AND key = ?`, projectID, key)
	return errors.WithStack(err)
}
