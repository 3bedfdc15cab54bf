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

// Package api is the REST layer of cdws. Routes are mounted under a
// configurable prefix; list endpoints answer with a {count, results}
// envelope and honor limit/offset paging.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/2gis/cdws/pkg/dispatch"
	"github.com/2gis/cdws/pkg/store"
	"github.com/2gis/cdws/pkg/tracker"
)

// Server handles the cdws REST API.
type Server struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	executor   *dispatch.Executor
	tracker    *tracker.Client

	authUser     string
	authPassword string

	router *mux.Router
}

// Dependencies wires a Server. Tracker may be nil when no bug tracking
// system is configured.
type Dependencies struct {
	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Executor   *dispatch.Executor
	Tracker    *tracker.Client

	// APIPath is the URL prefix all routes are mounted under.
	APIPath string

	// AuthUser/AuthPassword guard the report upload endpoint.
	AuthUser     string
	AuthPassword string
}

// NewServer constructs the API server and registers its routes.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		store:        deps.Store,
		dispatcher:   deps.Dispatcher,
		executor:     deps.Executor,
		tracker:      deps.Tracker,
		authUser:     deps.AuthUser,
		authPassword: deps.AuthPassword,
	}

	root := mux.NewRouter()
	r := root.PathPrefix(strings.TrimSuffix(deps.APIPath, "/")).Subrouter()

	r.HandleFunc("/projects/", s.createProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/", s.listProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/", s.getProject).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/", s.deleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{id}/settings/", s.setProjectSetting).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/settings/delete/", s.deleteProjectSetting).Methods(http.MethodPost)

	r.HandleFunc("/testplans/", s.createTestPlan).Methods(http.MethodPost)
	r.HandleFunc("/testplans/", s.listTestPlans).Methods(http.MethodGet)
	r.HandleFunc("/testplans/custom_list/", s.customListTestPlans).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{id}/", s.getTestPlan).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{id}/", s.patchTestPlan).Methods(http.MethodPatch)
	r.HandleFunc("/testplans/{id}/", s.deleteTestPlan).Methods(http.MethodDelete)
	r.HandleFunc("/testplans/{id}/execute/", s.executeTestPlan).Methods(http.MethodPost)

	r.HandleFunc("/launches/", s.createLaunch).Methods(http.MethodPost)
	r.HandleFunc("/launches/", s.listLaunches).Methods(http.MethodGet)
	r.HandleFunc("/launches/custom_list/", s.customListLaunches).Methods(http.MethodGet)
	r.HandleFunc("/launches/{id}/", s.getLaunch).Methods(http.MethodGet)
	r.HandleFunc("/launches/{id}/", s.patchLaunch).Methods(http.MethodPatch)
	r.HandleFunc("/launches/{id}/", s.deleteLaunch).Methods(http.MethodDelete)
	r.HandleFunc("/launches/{id}/terminate_tasks/", s.terminateLaunch).Methods(http.MethodGet)
	r.HandleFunc("/launches/{id}/calculate_counts/", s.calculateLaunchCounts).Methods(http.MethodGet)
	r.HandleFunc("/launches/{id}/update_metrics/", s.updateLaunchMetrics).Methods(http.MethodPost)

	r.HandleFunc("/launch-items/", s.createLaunchItem).Methods(http.MethodPost)
	r.HandleFunc("/launch-items/", s.listLaunchItems).Methods(http.MethodGet)
	r.HandleFunc("/launch-items/{id}/", s.patchLaunchItem).Methods(http.MethodPatch)
	r.HandleFunc("/launch-items/{id}/", s.deleteLaunchItem).Methods(http.MethodDelete)

	r.HandleFunc("/testresults/", s.createTestResults).Methods(http.MethodPost)
	r.HandleFunc("/testresults/", s.listTestResults).Methods(http.MethodGet)
	r.HandleFunc("/testresults/custom_list/", s.customListTestResults).Methods(http.MethodGet)
	r.HandleFunc("/testresults_negative/", s.listTestResultsNegative).Methods(http.MethodGet)

	r.HandleFunc("/bugs/", s.createBug).Methods(http.MethodPost)
	r.HandleFunc("/bugs/", s.listBugs).Methods(http.MethodGet)
	r.HandleFunc("/bugs/custom_list/", s.customListBugs).Methods(http.MethodGet)
	r.HandleFunc("/bugs/{id}/", s.getBug).Methods(http.MethodGet)
	r.HandleFunc("/bugs/{id}/", s.deleteBug).Methods(http.MethodDelete)

	r.HandleFunc("/stages/", s.listStages).Methods(http.MethodGet)
	r.HandleFunc("/stages/{id}/", s.patchStage).Methods(http.MethodPatch)

	r.HandleFunc("/comments/", s.createComment).Methods(http.MethodPost)
	r.HandleFunc("/comments/", s.listComments).Methods(http.MethodGet)

	r.HandleFunc("/metrics/", s.createMetric).Methods(http.MethodPost)
	r.HandleFunc("/metrics/", s.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics/{id}/", s.getMetric).Methods(http.MethodGet)
	r.HandleFunc("/metrics/{id}/", s.patchMetric).Methods(http.MethodPatch)
	r.HandleFunc("/metrics/{id}/", s.deleteMetric).Methods(http.MethodDelete)
	r.HandleFunc("/metrics/{id}/values/", s.listMetricValues).Methods(http.MethodGet)

	r.HandleFunc("/tasks/{uuid}/", s.getTask).Methods(http.MethodGet)

	r.HandleFunc("/external/jenkins/{project}/", s.jenkinsCallback).Methods(http.MethodPost)
	r.HandleFunc("/external/rundeck/{project}/", s.rundeckCallback).Methods(http.MethodPost)
	r.HandleFunc("/external/report-xunit/{testplan}/{format}/{filename}", s.uploadReport).Methods(http.MethodPost)

	s.router = root
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
