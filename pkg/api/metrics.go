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

	"github.com/pkg/errors"

	"github.com/2gis/cdws/pkg/sched"
	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) createMetric(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Project  int64   `json:"project"`
		Name     string  `json:"name"`
		Schedule string  `json:"schedule"`
		Handler  string  `json:"handler"`
		Query    string  `json:"query"`
		Weight   float64 `json:"weight"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	if body.Name == "" {
		message(w, http.StatusBadRequest, `Field "name" is required`)
		return
	}
	if !sched.ValidHandler(body.Handler) {
		message(w, http.StatusBadRequest, `Handler "%s" is not a valid choice`, body.Handler)
		return
	}
	if _, err := s.store.MetricByName(body.Project, body.Name); err == nil {
		message(w, http.StatusBadRequest, "Metric already exist, choose another name")
		return
	} else if errors.Cause(err) != store.ErrNotFound {
		s.serverError(w, err)
		return
	}

	m, err := s.store.CreateMetric(&store.Metric{
		Project:  body.Project,
		Name:     body.Name,
		Schedule: body.Schedule,
		Handler:  body.Handler,
		Query:    body.Query,
		Weight:   body.Weight,
	})
	if err != nil {
		s.serverError(w, err)
		return
	}

	if err := s.bindMetricSchedule(m); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// bindMetricSchedule resolves the shared crontab row for the metric's
// schedule and points the metric's periodic task at it.
func (s *Server) bindMetricSchedule(m *store.Metric) error {
	crontab, err := s.store.GetOrCreateCrontab(m.Schedule)
	if err != nil {
		return err
	}
	args, err := json.Marshal([]int64{m.ID})
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = s.store.UpsertPeriodicTask(
		store.MetricTaskName(m.ID), sched.MetricTask, string(args), crontab.ID)
	return err
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Metrics()
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, metrics)
}

func (s *Server) getMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	m, err := s.store.Metric(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) patchMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	m, err := s.store.Metric(id)
	if err != nil {
		message(w, http.StatusBadRequest, "Metric not found")
		return
	}

	patch := struct {
		Name     *string  `json:"name"`
		Schedule *string  `json:"schedule"`
		Handler  *string  `json:"handler"`
		Query    *string  `json:"query"`
		Weight   *float64 `json:"weight"`
	}{}
	if err := readJSON(r, &patch); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	if patch.Name != nil && *patch.Name != m.Name {
		if _, err := s.store.MetricByName(m.Project, *patch.Name); err == nil {
			message(w, http.StatusBadRequest, "Metric already exist, choose another name")
			return
		} else if errors.Cause(err) != store.ErrNotFound {
			s.serverError(w, err)
			return
		}
		m.Name = *patch.Name
	}
	if patch.Handler != nil {
		if !sched.ValidHandler(*patch.Handler) {
			message(w, http.StatusBadRequest, `Handler "%s" is not a valid choice`, *patch.Handler)
			return
		}
		m.Handler = *patch.Handler
	}
	if patch.Query != nil {
		m.Query = *patch.Query
	}
	if patch.Weight != nil {
		m.Weight = *patch.Weight
	}

	rebind := false
	if patch.Schedule != nil && *patch.Schedule != m.Schedule {
		m.Schedule = *patch.Schedule
		rebind = true
	}

	if err := s.store.UpdateMetric(m); err != nil {
		s.serverError(w, err)
		return
	}
	if rebind {
		// Old crontab rows stay in the shared table; the cleanup job
		// sweeps the ones nothing references anymore.
		if err := s.bindMetricSchedule(m); err != nil {
			message(w, http.StatusBadRequest, "%v", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if _, err := s.store.Metric(id); err != nil {
		message(w, http.StatusBadRequest, "Metric not found")
		return
	}
	if err := s.store.DeleteMetric(id); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Metric and all values deleted"})
}

func (s *Server) listMetricValues(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	values, err := s.store.MetricValues(id)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, values)
}
