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
	"time"

	"github.com/pkg/errors"
)

// CreateComment inserts a comment.
func (s *Store) CreateComment(c *Comment) (*Comment, error) {
	res, err := s.db.Exec(
		`INSERT INTO comments (comment, content_type, object_pk, username, created) VALUES (?, ?, ?, ?, ?)`,
		c.Comment, c.ContentType, c.ObjectPK, c.UserData.Username, formatTime(time.Now()))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create comment")
	}
	c.ID, _ = res.LastInsertId()
	saved := *c
	saved.Created = time.Now().UTC()
	return &saved, nil
}

// Comments lists all comments, oldest first.
func (s *Store) Comments() ([]Comment, error) {
	rows, err := s.db.Query(
		`SELECT id, comment, content_type, object_pk, username, created FROM comments ORDER BY id`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		var created string
		if err := rows.Scan(&c.ID, &c.Comment, &c.ContentType, &c.ObjectPK,
			&c.UserData.Username, &created); err != nil {
			return nil, errors.WithStack(err)
		}
		c.Created = parseTime(created)
		out = append(out, c)
	}
	return out, errors.WithStack(rows.Err())
}
