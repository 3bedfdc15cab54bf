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

	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) createLaunchItem(w http.ResponseWriter, r *http.Request) {
	li := &store.LaunchItem{}
	if err := readJSON(r, li); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	created, err := s.store.CreateLaunchItem(li)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listLaunchItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.LaunchItems(0)
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, items)
}

func (s *Server) patchLaunchItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	li, err := s.store.LaunchItem(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	patch := struct {
		Name    *string `json:"name"`
		Command *string `json:"command"`
		Type    *int    `json:"type"`
		Timeout *int    `json:"timeout"`
	}{}
	if err := readJSON(r, &patch); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	if patch.Name != nil {
		li.Name = *patch.Name
	}
	if patch.Command != nil {
		li.Command = *patch.Command
	}
	if patch.Type != nil {
		li.Type = *patch.Type
	}
	if patch.Timeout != nil {
		li.Timeout = *patch.Timeout
	}

	if err := s.store.UpdateLaunchItem(li); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (s *Server) deleteLaunchItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if err := s.store.DeleteLaunchItem(id); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
