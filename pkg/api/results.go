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
	"strconv"

	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) createTestResults(w http.ResponseWriter, r *http.Request) {
	var body []store.TestResult
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	created, err := s.store.CreateTestResults(body)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTestResults(w http.ResponseWriter, r *http.Request) {
	f, ok := s.resultFilter(w, r)
	if !ok {
		return
	}
	results, err := s.store.TestResults(f)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, results)
}

// listTestResultsNegative lists results whose failure reason does NOT match
// the search regexp. A separate endpoint because RE2 has no negative
// lookahead, so clients pass the plain pattern here instead.
func (s *Server) listTestResultsNegative(w http.ResponseWriter, r *http.Request) {
	f, ok := s.resultFilter(w, r)
	if !ok {
		return
	}
	f.NegativeSearch = r.URL.Query().Get("search")
	f.Search = ""

	results, err := s.store.TestResults(f)
	if err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	page(w, r, results)
}

func (s *Server) customListTestResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TestResultFilter{
		LaunchIDs: splitIntList(q.Get("launch_id__in")),
	}
	for _, raw := range splitList(q.Get("state__in")) {
		state, err := strconv.Atoi(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid state %q", raw)
			return
		}
		f.States = append(f.States, state)
	}
	if raw := q.Get("state"); raw != "" {
		state, err := strconv.Atoi(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid state %q", raw)
			return
		}
		f.State = &state
	}
	if raw := q.Get("history"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid history %q", raw)
			return
		}
		f.History = id
	}
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid days %q", raw)
			return
		}
		f.Days = &days
	}

	results, err := s.store.TestResults(f)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	page(w, r, results)
}

func (s *Server) resultFilter(w http.ResponseWriter, r *http.Request) (store.TestResultFilter, bool) {
	q := r.URL.Query()
	f := store.TestResultFilter{Search: q.Get("search")}

	if raw := q.Get("launch"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid launch %q", raw)
			return f, false
		}
		f.Launch = id
	}
	if raw := q.Get("state"); raw != "" {
		state, err := strconv.Atoi(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid state %q", raw)
			return f, false
		}
		f.State = &state
	}
	return f, true
}
