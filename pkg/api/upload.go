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
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/results"
	"github.com/2gis/cdws/pkg/store"
)

// uploadData is the optional "data" form field of a report upload: CI
// environment plus the build options the reporting job knows about.
type uploadData struct {
	Env     map[string]interface{} `json:"env"`
	Options uploadOptions          `json:"options"`
}

type uploadOptions struct {
	StartedBy   string   `json:"started_by"`
	Duration    string   `json:"duration"`
	Version     string   `json:"version"`
	Hash        string   `json:"hash"`
	Branch      string   `json:"branch"`
	LastCommits []string `json:"last_commits"`
}

func (o uploadOptions) hasBuild() bool {
	return o.Version != "" || o.Hash != "" || o.Branch != "" || len(o.LastCommits) > 0
}

func (o uploadOptions) empty() bool {
	return o.StartedBy == "" && o.Duration == "" && !o.hasBuild()
}

// uploadReport ingests an xUnit report file into a launch of the test plan.
// A broken report is not fatal: the launch is still created and the parse
// error lands in a comment, so the CI job that posted it can be debugged.
func (s *Server) uploadReport(w http.ResponseWriter, r *http.Request) {
	user, password, ok := r.BasicAuth()
	if !ok || user != s.authUser || password != s.authPassword {
		w.Header().Set("WWW-Authenticate", `Basic realm="cdws"`)
		detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}

	vars := mux.Vars(r)
	format := vars["format"]
	if format != results.FormatJUnit && format != results.FormatNUnit {
		message(w, http.StatusBadRequest, "Unknown file format")
		return
	}
	planID, err := strconv.ParseInt(vars["testplan"], 10, 64)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}
	if _, err := s.store.TestPlan(planID); err != nil {
		s.notFoundOr(w, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		message(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer file.Close()

	data := uploadData{}
	if raw := r.FormValue("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			message(w, http.StatusBadRequest, "%v", err)
			return
		}
	}

	launch, err := s.uploadLaunch(r.FormValue("launch"), planID, data)
	if err != nil {
		s.notFoundOr(w, err)
		return
	}

	parsed, totalDuration, err := results.Parse(format, file)
	if err != nil {
		// The report is unusable but the launch already exists; leave a
		// trace of what went wrong instead of failing the upload.
		if _, cerr := s.store.CreateComment(&store.Comment{
			Comment:     fmt.Sprintf("During xml parsing the following error is received: %q", err.Error()),
			ContentType: "launch",
			ObjectPK:    strconv.FormatInt(launch.ID, 10),
			UserData:    store.UserData{Username: "xml-parser"},
		}); cerr != nil {
			s.serverError(w, cerr)
			return
		}
		logrus.WithFields(logrus.Fields{
			"launch": launch.ID,
			"error":  err,
		}).Warning("unparseable report uploaded")
		s.finishUploadLaunch(w, launch, 0, data)
		return
	}

	for i := range parsed {
		parsed[i].Launch = launch.ID
	}
	if _, err := s.store.CreateTestResults(parsed); err != nil {
		s.serverError(w, err)
		return
	}
	counts, err := s.store.CalculateCounts(launch.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	launch.Counts = *counts
	s.finishUploadLaunch(w, launch, totalDuration, data)
}

// uploadLaunch resolves the target launch: the one named in the form, or a
// fresh launch of the plan. The build metadata and started_by from the data
// field apply either way, so CI jobs reporting into a pre-created launch
// look the same as jobs that let the upload create one.
func (s *Server) uploadLaunch(rawLaunch string, planID int64, data uploadData) (*store.Launch, error) {
	var launch *store.Launch
	var err error
	if rawLaunch != "" {
		id, perr := strconv.ParseInt(rawLaunch, 10, 64)
		if perr != nil {
			return nil, store.ErrNotFound
		}
		launch, err = s.store.Launch(id)
	} else {
		launch, err = s.store.CreateLaunch(planID, data.Options.StartedBy)
	}
	if err != nil {
		return nil, err
	}

	if data.Options.hasBuild() {
		commits := data.Options.LastCommits
		if s.executor.LastCommitsSize > 0 && len(commits) > s.executor.LastCommitsSize {
			commits = commits[:s.executor.LastCommitsSize]
		}
		build := &store.Build{
			Launch:      launch.ID,
			Version:     data.Options.Version,
			Hash:        data.Options.Hash,
			Branch:      data.Options.Branch,
			LastCommits: commits,
		}
		if build.Hash == "" && len(commits) > 0 {
			build.Hash = commits[0]
		}
		if err := s.store.SaveBuild(build); err != nil {
			return nil, err
		}
		if launch, err = s.store.Launch(launch.ID); err != nil {
			return nil, err
		}
	}
	if data.Options.StartedBy != "" {
		launch.StartedBy = data.Options.StartedBy
	}
	return launch, nil
}

func (s *Server) finishUploadLaunch(w http.ResponseWriter, launch *store.Launch, totalDuration float64, data uploadData) {
	launch.Duration = totalDuration
	if data.Options.Duration != "" {
		if d, err := strconv.ParseFloat(data.Options.Duration, 64); err == nil {
			launch.Duration = d
		}
	}
	if data.Env != nil || !data.Options.empty() {
		if launch.Parameters == nil {
			launch.Parameters = map[string]interface{}{}
		}
		if data.Env != nil {
			launch.Parameters["env"] = data.Env
		}
		if !data.Options.empty() {
			launch.Parameters["options"] = data.Options
		}
	}

	now := time.Now().UTC()
	launch.State = store.Finished
	launch.Finished = &now
	if err := s.store.UpdateLaunch(launch); err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"launch_id": launch.ID})
}
