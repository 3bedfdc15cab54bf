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
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/errlog"
	"github.com/2gis/cdws/pkg/store"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errlog.LogError(errors.Wrap(err, "couldn't encode response"))
	}
}

// message writes the {"message": ...} error envelope used for 400s.
func message(w http.ResponseWriter, code int, format string, args ...interface{}) {
	writeJSON(w, code, map[string]string{"message": fmt.Sprintf(format, args...)})
}

// detail writes the {"detail": ...} envelope used for 404/415 responses.
func detail(w http.ResponseWriter, code int, text string) {
	writeJSON(w, code, map[string]string{"detail": text})
}

// serverError logs the error and answers 500.
func (s *Server) serverError(w http.ResponseWriter, err error) {
	errlog.LogError(err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
}

// notFoundOr maps store.ErrNotFound to the standard 404 envelope and
// treats everything else as a server error.
func (s *Server) notFoundOr(w http.ResponseWriter, err error) {
	if errors.Cause(err) == store.ErrNotFound {
		detail(w, http.StatusNotFound, "Not found.")
		return
	}
	s.serverError(w, err)
}

// page writes the {count, results} list envelope, applying limit/offset
// paging from the query string. count is the size before paging.
func page(w http.ResponseWriter, r *http.Request, results interface{}) {
	v := reflect.ValueOf(results)
	count := v.Len()

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", count)
	if offset > count {
		offset = count
	}
	end := offset + limit
	if end > count {
		end = count
	}
	v = v.Slice(offset, end)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   count,
		"results": v.Interface(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// pathID extracts the numeric {id} path variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, errors.Wrapf(err, "bad id %q", raw)
}

func readJSON(r *http.Request, v interface{}) error {
	return errors.Wrap(json.NewDecoder(r.Body).Decode(v), "couldn't decode request body")
}

// splitList splits a comma separated __in query value. An empty value means
// no constraint and yields nil.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitIntList is splitList for numeric id lists. Malformed entries are
// dropped, matching how loose the original query parsing was.
func splitIntList(raw string) []int64 {
	var out []int64
	for _, s := range splitList(raw) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			logrus.WithField("value", s).Debug("ignoring malformed id in list")
			continue
		}
		out = append(out, n)
	}
	return out
}

// requestUser names the caller for audit fields. Basic auth when present,
// anonymous otherwise.
func requestUser(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return user
	}
	return "anonymous"
}
