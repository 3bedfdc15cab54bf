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

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Comment     string `json:"comment"`
		ContentType string `json:"content_type"`
		ObjectPK    string `json:"object_pk"`
	}{}
	if err := readJSON(r, &body); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}

	c, err := s.store.CreateComment(&store.Comment{
		Comment:     body.Comment,
		ContentType: body.ContentType,
		ObjectPK:    body.ObjectPK,
		UserData:    store.UserData{Username: requestUser(r)},
	})
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.Comments()
	if err != nil {
		s.serverError(w, err)
		return
	}
	page(w, r, comments)
}
