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

	"github.com/gorilla/mux"
)

// getTask reports the status of an async task. Ids the dispatcher never saw
// read as PENDING with a null result, which is what polling clients expect
// for queued work.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	status := s.dispatcher.Status(mux.Vars(r)["uuid"])
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status.Status,
		"result": status.Result,
	})
}
