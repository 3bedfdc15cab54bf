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

package api

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/2gis/cdws/pkg/store"
	"github.com/2gis/cdws/pkg/tracker"
)

func (s *Server) createBug(w http.ResponseWriter, r *http.Request) {
	body := struct {
		ExternalID string `json:"externalId"`
		Regexp     string `json:"regexp"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	if s.tracker == nil {
		message(w, http.StatusBadRequest, "Bug tracking system is not configured")
		return
	}

	issue, err := s.tracker.Issue(body.ExternalID)
	if err != nil {
		var issueErr *tracker.IssueError
		if errors.As(err, &issueErr) {
			message(w, http.StatusBadRequest, "%s", issueErr.Message)
			return
		}
		s.serverError(w, err)
		return
	}

	bug, err := s.store.CreateBug(&store.Bug{
		ExternalID: body.ExternalID,
		Name:       issue.Summary,
		Regexp:     body.Regexp,
		State:      issue.Status,
	})
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bug)
}

func (s *Server) listBugs(w http.ResponseWriter, r *http.Request) {
	bugs, err := s.store.Bugs(nil)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, bugs)
}

// customListBugs filters bugs by their tracker project key, the part of the
// external id before the dash.
func (s *Server) customListBugs(w http.ResponseWriter, r *http.Request) {
	prefixes := splitList(r.URL.Query().Get("issue_names__in"))
	bugs, err := s.store.Bugs(prefixes)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, bugs)
}

func (s *Server) getBug(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	bug, err := s.store.Bug(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (s *Server) deleteBug(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.store.DeleteBug(id); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
