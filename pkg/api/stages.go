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
	"encoding/xml"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/2gis/cdws/pkg/store"
)

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.store.Stages()
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, stages)
}

func (s *Server) patchStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	st, err := s.store.Stage(id)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	patch := struct {
		Name  *string `json:"name"`
		State *string `json:"state"`
	}{}
	if err := readJSON(r, &patch); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	if patch.Name != nil {
		st.Name = *patch.Name
	}
	if patch.State != nil {
		st.State = *patch.State
	}

	if err := s.store.UpdateStage(st); err != nil {
		s.notFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// jenkinsCallback receives Jenkins notification-plugin payloads and records
// the job's state as a stage of the project.
func (s *Server) jenkinsCallback(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		detail(w, http.StatusUnsupportedMediaType,
			`Unsupported media type "`+r.Header.Get("Content-Type")+`" in request.`)
		return
	}

	projectName := mux.Vars(r)["project"]
	project, err := s.store.ProjectByName(projectName)
	if err != nil {
		message(w, http.StatusBadRequest, "Project %s does not exist", projectName)
		return
	}

	body := struct {
		Name  string `json:"name"`
		Build struct {
			Status  string `json:"status"`
			Phase   string `json:"phase"`
			FullURL string `json:"full_url"`
		} `json:"build"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	state := store.StageDanger
	if body.Build.Status == "SUCCESS" {
		state = store.StageSuccess
	}
	st, err := s.store.SetStageState(project.ID, body.Name, state)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// rundeckNotification is the relevant slice of Rundeck's XML webhook body.
type rundeckNotification struct {
	XMLName    xml.Name `xml:"notification"`
	Executions struct {
		Execution struct {
			Status string `xml:"status,attr"`
			Job    struct {
				Group string `xml:"group"`
			} `xml:"job"`
		} `xml:"execution"`
	} `xml:"executions"`
}

func (s *Server) rundeckCallback(w http.ResponseWriter, r *http.Request) {
	projectName := mux.Vars(r)["project"]
	project, err := s.store.ProjectByName(projectName)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	body := rundeckNotification{}
	if err := xml.NewDecoder(r.Body).Decode(&body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	state := store.StageDanger
	if body.Executions.Execution.Status == "succeeded" {
		state = store.StageSuccess
	}
	st, err := s.store.SetStageState(project.ID, body.Executions.Execution.Job.Group, state)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
