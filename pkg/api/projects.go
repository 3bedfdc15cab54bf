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

import "net/http"

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Name string `json:"name"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	p, err := s.store.CreateProject(body.Name)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.Projects()
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	p, err := s.store.Project(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.store.DeleteProject(id); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setProjectSetting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	body := struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	setting, err := s.store.UpsertProjectSetting(id, body.Key, body.Value)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) deleteProjectSetting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	body := struct {
		Key string `json:"key"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	// Deleting a key that never existed is not an error.
	if err := s.store.DeleteProjectSetting(id, body.Key); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}
