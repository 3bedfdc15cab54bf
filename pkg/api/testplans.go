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
	"net/http"

	"github.com/2gis/cdws/pkg/dispatch"
	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) createTestPlan(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Name        string `json:"name"`
		Project     int64  `json:"project"`
		Hidden      *bool  `json:"hidden"`
		Description string `json:"description"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	tp := &store.TestPlan{
		Name:        body.Name,
		Project:     body.Project,
		Hidden:      true,
		Description: body.Description,
		Owner:       requestUser(r),
	}
	if body.Hidden != nil {
		tp.Hidden = *body.Hidden
	}

	created, err := s.store.CreateTestPlan(tp)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTestPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.TestPlans(store.TestPlanFilter{})
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, plans)
}

func (s *Server) customListTestPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	plans, err := s.store.TestPlans(store.TestPlanFilter{
		IDs:        splitIntList(q.Get("id__in")),
		ProjectIDs: splitIntList(q.Get("project_id__in")),
	})
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, plans)
}

func (s *Server) getTestPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	tp, err := s.store.TestPlan(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

func (s *Server) patchTestPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	tp, err := s.store.TestPlan(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	patch := struct {
		Name                *string `json:"name"`
		Description         *string `json:"description"`
		Hidden              *bool   `json:"hidden"`
		Main                *bool   `json:"main"`
		ShowInSummary       *bool   `json:"show_in_summary"`
		ShowInTwodays       *bool   `json:"show_in_twodays"`
		Filter              *string `json:"filter"`
		VariableName        *string `json:"variable_name"`
		VariableValueRegexp *string `json:"variable_value_regexp"`
	}{}
	if err := readJSON(r, &patch); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	if patch.Name != nil {
		tp.Name = *patch.Name
	}
	if patch.Description != nil {
		tp.Description = *patch.Description
	}
	if patch.Hidden != nil {
		tp.Hidden = *patch.Hidden
	}
	if patch.Main != nil {
		tp.Main = *patch.Main
	}
	if patch.ShowInSummary != nil {
		tp.ShowInSummary = *patch.ShowInSummary
	}
	if patch.ShowInTwodays != nil {
		tp.ShowInTwodays = *patch.ShowInTwodays
	}
	if patch.Filter != nil {
		tp.Filter = *patch.Filter
	}
	if patch.VariableName != nil {
		tp.VariableName = *patch.VariableName
	}
	if patch.VariableValueRegexp != nil {
		tp.VariableValueRegexp = *patch.VariableValueRegexp
	}

	if err := s.store.UpdateTestPlan(tp); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

func (s *Server) deleteTestPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.store.DeleteTestPlan(id); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeTestPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if _, err := s.store.TestPlan(id); err != nil {
		s.notFoundOr(w, err)
		return
	}

	body := struct {
		Options     dispatch.ExecuteOptions `json:"options"`
		LaunchItems json.RawMessage         `json:"launch_items"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	var itemIDs []int64
	if len(body.LaunchItems) > 0 {
		if err := json.Unmarshal(body.LaunchItems, &itemIDs); err != nil {
			message(w, http.StatusBadRequest,
				"Invalid launch_items %s, expect list of ids", body.LaunchItems)
			return
		}
	}
	if body.Options.StartedBy == "" {
		body.Options.StartedBy = requestUser(r)
	}

	launchID, err := s.executor.Execute(id, body.Options, itemIDs)
	if err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"launch_id": launchID})
}
