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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) createLaunch(w http.ResponseWriter, r *http.Request) {
	body := struct {
		TestPlan  int64  `json:"test_plan"`
		StartedBy string `json:"started_by"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	l, err := s.store.CreateLaunch(body.TestPlan, body.StartedBy)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) listLaunches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LaunchFilter{
		BuildVersion: q.Get("build__version"),
		BuildBranch:  q.Get("build__branch"),
		BuildHash:    q.Get("build__hash"),
	}
	if raw := q.Get("testplan"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid testplan %q", raw)
			return
		}
		f.TestPlan = id
	}

	launches, err := s.store.Launches(f)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, launches)
}

func (s *Server) customListLaunches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// results_group_count flips the endpoint into the per-item count shape.
	if raw := q.Get("results_group_count"); raw != "" {
		launchID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid launch %q", raw)
			return
		}
		state, err := strconv.Atoi(q.Get("state"))
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid state %q", q.Get("state"))
			return
		}
		groups, err := s.store.GroupCountsByItem(launchID, state)
		if err != nil {
			s.serverError(w, err)
			return
		}
		page(w, r, groups)
		return
	}

	f := store.LaunchFilter{
		TestPlanIDs: splitIntList(q.Get("testplan_id__in")),
		BuildHashIn: splitList(q.Get("build_hash__in")),
	}
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid days %q", raw)
			return
		}
		f.Days = &days
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid from date %q", raw)
			return
		}
		f.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			message(w, http.StatusBadRequest, "Invalid to date %q", raw)
			return
		}
		f.To = &to
	}

	launches, err := s.store.Launches(f)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, launches)
}

// parseDate accepts a bare date or a full timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Server) getLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	l, err := s.store.Launch(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) patchLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	l, err := s.store.Launch(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	patch := struct {
		Duration *float64 `json:"duration"`
		State    *int     `json:"state"`
	}{}
	if err := readJSON(r, &patch); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	if patch.Duration != nil {
		l.Duration = *patch.Duration
	}
	if patch.State != nil {
		l.State = *patch.State
		if *patch.State == store.Finished && l.Finished == nil {
			now := time.Now().UTC()
			l.Finished = &now
		}
	}

	if err := s.store.UpdateLaunch(l); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.store.DeleteLaunch(id); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) terminateLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.executor.Terminate(id); err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Termination done."})
}

func (s *Server) calculateLaunchCounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if _, err := s.store.Launch(id); err != nil {
		s.notFoundOr(w, err)
		return
	}
	if _, err := s.store.CalculateCounts(id); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Calculation done."})
}

func (s *Server) updateLaunchMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.serverError(w, err)
		return
	}

	l, err := s.store.Launch(id)
	if err != nil {
		message(w, http.StatusBadRequest, "Launch with id=%d does not exist", id)
		return
	}

	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		message(w, http.StatusBadRequest, "No metrics in post request: %s", raw)
		return
	}
	metricsRaw, ok := body["metrics"]
	if !ok || len(metricsRaw) == 0 || string(metricsRaw) == "null" {
		message(w, http.StatusBadRequest, "No metrics in post request: %s", raw)
		return
	}

	metrics := map[string]interface{}{}
	if err := json.Unmarshal(metricsRaw, &metrics); err != nil {
		message(w, http.StatusBadRequest, "Invalid format for metrics '%s', expect object", metricsRaw)
		return
	}

	if l.Parameters == nil {
		l.Parameters = map[string]interface{}{}
	}
	l.Parameters["metrics"] = metrics
	if err := s.store.UpdateLaunch(l); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
