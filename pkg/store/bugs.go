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
	"time"

	"github.com/pkg/errors"
)

const bugColumns = `id, external_id, name, regexp, state, created, updated`

func scanBug(row interface{ Scan(...interface{}) error }) (*Bug, error) {
	b := &Bug{}
	var created, updated string
	err := row.Scan(&b.ID, &b.ExternalID, &b.Name, &b.Regexp, &b.State, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b.Created = parseTime(created)
	b.Updated = parseTime(updated)
	return b, nil
}

// CreateBug inserts a bug mirroring a tracker issue.
func (s *Store) CreateBug(b *Bug) (*Bug, error) {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`INSERT INTO bugs (external_id, name, regexp, state, created, updated) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ExternalID, b.Name, b.Regexp, b.State, now, now)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't create bug %q", b.ExternalID)
	}
	id, _ := res.LastInsertId()
	return s.Bug(id)
}

// Bug fetches a single bug.
func (s *Store) Bug(id int64) (*Bug, error) {
	return scanBug(s.db.QueryRow(`SELECT `+bugColumns+` FROM bugs WHERE id = ?`, id))
}

// Bugs lists bugs, optionally keeping only those whose tracker project key
// (the part of the external id before the dash) is in prefixes.
func (s *Store) Bugs(prefixes []string) ([]Bug, error) {
	rows, err := s.db.Query(`SELECT ` + bugColumns + ` FROM bugs ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Bug{}
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	if len(prefixes) == 0 {
		return out, nil
	}
	kept := out[:0]
	for _, b := range out {
		key := b.ExternalID
		if i := strings.Index(key, "-"); i >= 0 {
			key = key[:i]
		}
		for _, p := range prefixes {
			if key == p {
				kept = append(kept, b)
				break
			}
		}
	}
	return kept, nil
}

// UpdateBugState stores freshly polled tracker state and bumps updated.
func (s *Store) UpdateBugState(id int64, name, state string) error {
	_, err := s.db.Exec(
		`UPDATE bugs SET name = ?, state = ?, updated = ? WHERE id = ?`,
		name, state, formatTime(time.Now()), id)
	return errors.Wrapf(err, "couldn't update bug %d", id)
}

// SetBugUpdated rewrites the updated timestamp of a bug.
func (s *Store) SetBugUpdated(id int64, to time.Time) error {
	_, err := s.db.Exec(`UPDATE bugs SET updated = ? WHERE id = ?`, formatTime(to), id)
	return errors.WithStack(err)
}

// TouchBug bumps only the updated timestamp, marking the cached state fresh.
func (s *Store) TouchBug(id int64) error {
	_, err := s.db.Exec(`UPDATE bugs SET updated = ? WHERE id = ?`, formatTime(time.Now()), id)
	return errors.WithStack(err)
}

// DeleteBug removes a bug.
func (s *Store) DeleteBug(id int64) error {
	_, err := s.db.Exec(`DELETE FROM bugs WHERE id = ?`, id)
	return errors.WithStack(err)
}
