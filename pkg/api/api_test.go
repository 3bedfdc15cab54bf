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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2gis/cdws/pkg/dispatch"
	"github.com/2gis/cdws/pkg/store"
	"github.com/2gis/cdws/pkg/tracker"
)

type testEnv struct {
	server *Server
	store  *store.Store
}

func newTestEnv(t *testing.T, trackerClient *tracker.Client) *testEnv {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("couldn't open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	dispatcher := dispatch.NewDispatcher(2)
	server := NewServer(Dependencies{
		Store:      s,
		Dispatcher: dispatcher,
		Executor: &dispatch.Executor{
			Store:           s,
			Dispatcher:      dispatcher,
			LastCommitsSize: 15,
		},
		Tracker:      trackerClient,
		APIPath:      "/api",
		AuthUser:     "jenkins",
		AuthPassword: "secret",
	})
	return &testEnv{server: server, store: s}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("couldn't marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("couldn't decode response %q: %v", w.Body.String(), err)
	}
}

type listEnvelope struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder, results interface{}) int {
	t.Helper()
	env := listEnvelope{}
	decodeInto(t, w, &env)
	if results != nil {
		if err := json.Unmarshal(env.Results, results); err != nil {
			t.Fatalf("couldn't decode results %q: %v", env.Results, err)
		}
	}
	return env.Count
}

func errMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := struct {
		Message string `json:"message"`
	}{}
	decodeInto(t, w, &body)
	return body.Message
}

func (e *testEnv) seedPlan(t *testing.T) (*store.Project, *store.TestPlan) {
	t.Helper()
	p, err := e.store.CreateProject("DGIS")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tp, err := e.store.CreateTestPlan(&store.TestPlan{Project: p.ID, Name: "smoke"})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return p, tp
}

func TestProjectLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/projects/", map[string]string{"name": "DGIS"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	project := store.Project{}
	decodeInto(t, w, &project)

	// Duplicate create answers with the existing project.
	w = e.do(t, http.MethodPost, "/api/projects/", map[string]string{"name": "DGIS"})
	dup := store.Project{}
	decodeInto(t, w, &dup)
	if dup.ID != project.ID {
		t.Errorf("expected dedup by name, got ids %d and %d", project.ID, dup.ID)
	}

	w = e.do(t, http.MethodGet, "/api/projects/", nil)
	if count := decodeList(t, w, nil); count != 1 {
		t.Errorf("expected 1 project, got %d", count)
	}

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d/", project.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
	w = e.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/", project.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestProjectSettingsEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)
	p, _ := e.store.CreateProject("DGIS")

	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/settings/", p.ID),
		map[string]string{"key": "channel", "value": "#qa"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/settings/delete/", p.ID),
		map[string]string{"key": "never-existed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if msg := errMessage(t, w); msg != "ok" {
		t.Errorf(`expected message "ok", got %q`, msg)
	}
}

func TestTestPlanCustomList(t *testing.T) {
	e := newTestEnv(t, nil)
	p1, _ := e.store.CreateProject("DGIS")
	p2, _ := e.store.CreateProject("Maps")
	e.store.CreateTestPlan(&store.TestPlan{Project: p1.ID, Name: "smoke"})
	e.store.CreateTestPlan(&store.TestPlan{Project: p2.ID, Name: "full"})

	w := e.do(t, http.MethodGet, fmt.Sprintf("/api/testplans/custom_list/?project_id__in=%d", p1.ID), nil)
	if count := decodeList(t, w, nil); count != 1 {
		t.Errorf("expected 1 plan for project filter, got %d", count)
	}

	// Empty __in means no constraint.
	w = e.do(t, http.MethodGet, "/api/testplans/custom_list/?project_id__in=", nil)
	if count := decodeList(t, w, nil); count != 2 {
		t.Errorf("expected 2 plans without constraint, got %d", count)
	}
}

func TestExecuteTestPlan(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	e.store.CreateLaunchItem(&store.LaunchItem{TestPlan: tp.ID, Name: "deploy", Command: "true", Type: store.InitScript, Timeout: 10})
	e.store.CreateLaunchItem(&store.LaunchItem{TestPlan: tp.ID, Name: "deploy again", Command: "true", Type: store.InitScript, Timeout: 10})
	e.store.CreateLaunchItem(&store.LaunchItem{TestPlan: tp.ID, Name: "tests", Command: "true", Type: store.AsyncCall, Timeout: 10})

	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/testplans/%d/execute/", tp.ID),
		map[string]interface{}{"options": map[string]string{"started_by": "http://ci/job/1/"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := struct {
		LaunchID int64 `json:"launch_id"`
	}{}
	decodeInto(t, w, &body)

	launch, err := e.store.Launch(body.LaunchID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if len(launch.Tasks) != 2 {
		t.Errorf("expected 2 tasks (deduped init + async), got %d", len(launch.Tasks))
	}
}

func TestExecuteTestPlanBadLaunchItems(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)

	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/testplans/%d/execute/", tp.ID),
		map[string]interface{}{"launch_items": "1,2"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-list launch_items, got %d", w.Code)
	}
}

func TestTerminateAndCalculateCounts(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	l, _ := e.store.CreateLaunch(tp.ID, "user")
	e.store.CreateTestResults([]store.TestResult{
		{Launch: l.ID, Name: "a", State: store.Passed},
		{Launch: l.ID, Name: "b", State: store.Failed},
	})

	w := e.do(t, http.MethodGet, fmt.Sprintf("/api/launches/%d/terminate_tasks/", l.ID), nil)
	if msg := errMessage(t, w); msg != "Termination done." {
		t.Errorf("unexpected message %q", msg)
	}

	w = e.do(t, http.MethodGet, fmt.Sprintf("/api/launches/%d/calculate_counts/", l.ID), nil)
	if msg := errMessage(t, w); msg != "Calculation done." {
		t.Errorf("unexpected message %q", msg)
	}

	got, _ := e.store.Launch(l.ID)
	if got.Counts.Passed != 1 || got.Counts.Failed != 1 || got.Counts.Total != 2 {
		t.Errorf("unexpected counts: %+v", got.Counts)
	}
	if got.State != store.Stopped {
		t.Errorf("expected stopped launch, got state %d", got.State)
	}
}

func TestUpdateLaunchMetrics(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	l, _ := e.store.CreateLaunch(tp.ID, "user")

	w := e.do(t, http.MethodPost, "/api/launches/12345/update_metrics/",
		map[string]interface{}{"metrics": map[string]int{"speed": 1}})
	if msg := errMessage(t, w); msg != "Launch with id=12345 does not exist" {
		t.Errorf("unexpected message %q", msg)
	}

	w = e.do(t, http.MethodPost, fmt.Sprintf("/api/launches/%d/update_metrics/", l.ID),
		map[string]interface{}{"something": 1})
	if w.Code != http.StatusBadRequest || !strings.HasPrefix(errMessage(t, w), "No metrics in post request:") {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, fmt.Sprintf("/api/launches/%d/update_metrics/", l.ID),
		map[string]interface{}{"metrics": "not-an-object"})
	if w.Code != http.StatusBadRequest || !strings.HasPrefix(errMessage(t, w), "Invalid format for metrics") {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, fmt.Sprintf("/api/launches/%d/update_metrics/", l.ID),
		map[string]interface{}{"metrics": map[string]interface{}{"speed": 1.5}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := e.store.Launch(l.ID)
	metrics, ok := got.Parameters["metrics"].(map[string]interface{})
	if !ok || metrics["speed"] != 1.5 {
		t.Errorf("metrics not stored in parameters: %v", got.Parameters)
	}
}

func TestLaunchCustomListGroupCount(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	l, _ := e.store.CreateLaunch(tp.ID, "user")
	e.store.CreateTestResults([]store.TestResult{
		{Launch: l.ID, Name: "a", State: store.Failed, LaunchItemID: 1},
		{Launch: l.ID, Name: "b", State: store.Failed, LaunchItemID: 1},
		{Launch: l.ID, Name: "c", State: store.Failed, LaunchItemID: 2},
		{Launch: l.ID, Name: "d", State: store.Passed, LaunchItemID: 2},
	})

	w := e.do(t, http.MethodGet,
		fmt.Sprintf("/api/launches/custom_list/?results_group_count=%d&state=%d", l.ID, store.Failed), nil)
	groups := []store.ResultGroupCount{}
	if count := decodeList(t, w, &groups); count != 2 {
		t.Fatalf("expected 2 groups, got %d", count)
	}
	if groups[0].LaunchItemID != 1 || groups[0].Count != 2 {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
}

func TestTestResultsSearch(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	l, _ := e.store.CreateLaunch(tp.ID, "user")
	e.store.CreateTestResults([]store.TestResult{
		{Launch: l.ID, Name: "test_login", State: store.Failed, FailureReason: "TimeoutException"},
		{Launch: l.ID, Name: "test_logout", State: store.Failed, FailureReason: "assert failed"},
	})

	w := e.do(t, http.MethodGet, "/api/testresults/?search=test_log", nil)
	if count := decodeList(t, w, nil); count != 2 {
		t.Errorf("substring search: expected 2, got %d", count)
	}

	w = e.do(t, http.MethodGet, "/api/testresults/?search=login", nil)
	matched := []store.TestResult{}
	if count := decodeList(t, w, &matched); count != 1 || matched[0].Name != "test_login" {
		t.Errorf("substring search: expected only test_login, got %v", matched)
	}

	w = e.do(t, http.MethodGet, "/api/testresults_negative/?search=Exception", nil)
	results := []store.TestResult{}
	if count := decodeList(t, w, &results); count != 1 || results[0].Name != "test_logout" {
		t.Errorf("negative search: expected only test_logout, got %v", results)
	}
}

func TestBugEndpoints(t *testing.T) {
	issues := map[string]struct{ summary, status string }{
		"ISSUE-1": {"Login is broken", "Open"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/rest/api/latest/issue/")
		issue, ok := issues[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errorMessages": ["Issue Does Not Exist"], "errors": {}}`)
			return
		}
		fmt.Fprintf(w, `{"key": %q, "fields": {"summary": %q, "status": {"name": %q}}}`,
			id, issue.summary, issue.status)
	}))
	defer srv.Close()

	e := newTestEnv(t, tracker.NewClient(srv.URL, "/rest/api/latest/issue/{issue_id}"))

	w := e.do(t, http.MethodPost, "/api/bugs/", map[string]string{"externalId": "ISSUE-1", "regexp": "Timeout.*"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	bug := store.Bug{}
	decodeInto(t, w, &bug)
	if bug.Name != "Login is broken" || bug.State != "Open" {
		t.Errorf("unexpected bug %+v", bug)
	}

	w = e.do(t, http.MethodPost, "/api/bugs/", map[string]string{"externalId": "NOPE-1"})
	if w.Code != http.StatusBadRequest || errMessage(t, w) != "Issue Does Not Exist" {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}

	e.store.CreateBug(&store.Bug{ExternalID: "JIRA-7", Name: "other", State: "Open"})
	w = e.do(t, http.MethodGet, "/api/bugs/custom_list/?issue_names__in=ISSUE", nil)
	if count := decodeList(t, w, nil); count != 1 {
		t.Errorf("expected 1 bug for the ISSUE prefix, got %d", count)
	}
}

func TestJenkinsCallback(t *testing.T) {
	e := newTestEnv(t, nil)
	e.store.CreateProject("DGIS")

	payload := map[string]interface{}{
		"name":  "deploy",
		"build": map[string]string{"status": "SUCCESS", "phase": "FINISHED"},
	}

	w := e.do(t, http.MethodPost, "/api/external/jenkins/DGIS/", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	st := store.Stage{}
	decodeInto(t, w, &st)
	if st.State != store.StageSuccess {
		t.Errorf("expected success stage, got %q", st.State)
	}

	w = e.do(t, http.MethodPost, "/api/external/jenkins/Unknown/", payload)
	if w.Code != http.StatusBadRequest || errMessage(t, w) != "Project Unknown does not exist" {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/external/jenkins/DGIS/", strings.NewReader("hi"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415 for text/plain, got %d", rec.Code)
	}
	body := struct {
		Detail string `json:"detail"`
	}{}
	decodeInto(t, rec, &body)
	if body.Detail != `Unsupported media type "text/plain" in request.` {
		t.Errorf("unexpected detail %q", body.Detail)
	}
}

func TestRundeckCallback(t *testing.T) {
	e := newTestEnv(t, nil)
	e.store.CreateProject("DGIS")

	notification := `<notification status="succeeded">
  <executions count="1">
    <execution status="succeeded">
      <job><group>nightly-deploy</group></job>
    </execution>
  </executions>
</notification>`

	req := httptest.NewRequest(http.MethodPost, "/api/external/rundeck/DGIS/", strings.NewReader(notification))
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	st := store.Stage{}
	decodeInto(t, w, &st)
	if st.Name != "nightly-deploy" || st.State != store.StageSuccess {
		t.Errorf("unexpected stage %+v", st)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/external/rundeck/Unknown/", strings.NewReader(notification))
	w = httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown project, got %d", w.Code)
	}
}

func TestMetricValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	p, _ := e.store.CreateProject("DGIS")

	w := e.do(t, http.MethodPost, "/api/metrics/", map[string]interface{}{
		"project": p.ID, "name": "", "schedule": "0 1 * * *", "handler": "count",
	})
	if msg := errMessage(t, w); msg != `Field "name" is required` {
		t.Errorf("unexpected message %q", msg)
	}

	w = e.do(t, http.MethodPost, "/api/metrics/", map[string]interface{}{
		"project": p.ID, "name": "m", "schedule": "0 1 * * *", "handler": "magic",
	})
	if msg := errMessage(t, w); msg != `Handler "magic" is not a valid choice` {
		t.Errorf("unexpected message %q", msg)
	}

	w = e.do(t, http.MethodPost, "/api/metrics/", map[string]interface{}{
		"project": p.ID, "name": "m", "schedule": "0 1 * * *", "handler": "count",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	m := store.Metric{}
	decodeInto(t, w, &m)

	w = e.do(t, http.MethodPost, "/api/metrics/", map[string]interface{}{
		"project": p.ID, "name": "m", "schedule": "0 1 * * *", "handler": "count",
	})
	if msg := errMessage(t, w); msg != "Metric already exist, choose another name" {
		t.Errorf("unexpected message %q", msg)
	}

	if _, err := e.store.PeriodicTaskByName(store.MetricTaskName(m.ID)); err != nil {
		t.Errorf("expected a periodic task bound to the metric: %v", err)
	}

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/api/metrics/%d/", m.ID), nil)
	if msg := errMessage(t, w); msg != "Metric and all values deleted" {
		t.Errorf("unexpected message %q", msg)
	}
	w = e.do(t, http.MethodPatch, fmt.Sprintf("/api/metrics/%d/", m.ID), map[string]string{"name": "x"})
	if msg := errMessage(t, w); msg != "Metric not found" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestMetricRescheduleSharesCrontab(t *testing.T) {
	e := newTestEnv(t, nil)
	p, _ := e.store.CreateProject("DGIS")

	w := e.do(t, http.MethodPost, "/api/metrics/", map[string]interface{}{
		"project": p.ID, "name": "m", "schedule": "0 1 * * *", "handler": "count",
	})
	m := store.Metric{}
	decodeInto(t, w, &m)

	w = e.do(t, http.MethodPatch, fmt.Sprintf("/api/metrics/%d/", m.ID),
		map[string]string{"schedule": "30 2 * * *"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Old rows stay in the shared table until the cleanup job sweeps them.
	crontabs, _ := e.store.Crontabs()
	if len(crontabs) != 2 {
		t.Errorf("expected old and new crontab rows, got %d", len(crontabs))
	}
	task, err := e.store.PeriodicTaskByName(store.MetricTaskName(m.ID))
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	crontab, _ := e.store.Crontab(task.Crontab)
	if crontab.Spec() != "30 2 * * *" {
		t.Errorf("task should point at the new schedule, got %q", crontab.Spec())
	}
}

func TestTaskStatusUnknown(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodGet, "/api/tasks/not-seen-yet/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := struct {
		Status string  `json:"status"`
		Result *string `json:"result"`
	}{}
	decodeInto(t, w, &body)
	if body.Status != dispatch.StatusPending || body.Result != nil {
		t.Errorf("expected PENDING/null, got %+v", body)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return buf, mw.FormDataContentType()
}

const uploadedJUnit = `<?xml version="1.0"?>
<testsuites>
  <testsuite name="auth">
    <testcase classname="auth" name="ok" time="0.5"/>
    <testcase classname="auth" name="bad" time="0.5">
      <failure message="boom">boom</failure>
    </testcase>
  </testsuite>
</testsuites>`

func (e *testEnv) upload(t *testing.T, path string, fields map[string]string, content string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	buf, contentType := multipartUpload(t, fields, "report.xml", content)
	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", contentType)
	if auth {
		req.SetBasicAuth("jenkins", "secret")
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func TestUploadReportRequiresAuth(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)

	w := e.upload(t, fmt.Sprintf("/api/external/report-xunit/%d/junit/report.xml", tp.ID),
		nil, uploadedJUnit, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
}

func TestUploadReportUnknownFormat(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)

	w := e.upload(t, fmt.Sprintf("/api/external/report-xunit/%d/xunit/report.xml", tp.ID),
		nil, uploadedJUnit, true)
	if w.Code != http.StatusBadRequest || errMessage(t, w) != "Unknown file format" {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestUploadReport(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)

	data := `{"options": {"started_by": "http://ci/job/1/", "version": "123",
		"branch": "master", "last_commits": ["abc", "def"]},
		"env": {"BRANCH": "master"}}`
	w := e.upload(t, fmt.Sprintf("/api/external/report-xunit/%d/junit/report.xml", tp.ID),
		map[string]string{"data": data}, uploadedJUnit, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := struct {
		LaunchID int64 `json:"launch_id"`
	}{}
	decodeInto(t, w, &body)

	launch, err := e.store.Launch(body.LaunchID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if launch.State != store.Finished {
		t.Errorf("expected finished launch, got state %d", launch.State)
	}
	if launch.Counts.Passed != 1 || launch.Counts.Failed != 1 || launch.Counts.Total != 2 {
		t.Errorf("unexpected counts %+v", launch.Counts)
	}
	if launch.Duration != 1.0 {
		t.Errorf("expected summed duration 1.0, got %v", launch.Duration)
	}
	if launch.StartedBy != "http://ci/job/1/" {
		t.Errorf("unexpected started_by %q", launch.StartedBy)
	}
	if launch.Build == nil || launch.Build.Hash != "abc" {
		t.Errorf("expected build hash defaulted to first commit, got %+v", launch.Build)
	}
}

func TestUploadReportToExistingLaunch(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)
	l, _ := e.store.CreateLaunch(tp.ID, "")

	data := `{"options": {"started_by": "http://ci/job/2/", "branch": "master",
		"last_commits": ["abc", "def"]}, "env": {"BRANCH": "master"}}`
	w := e.upload(t, fmt.Sprintf("/api/external/report-xunit/%d/junit/report.xml", tp.ID),
		map[string]string{"launch": fmt.Sprintf("%d", l.ID), "data": data}, uploadedJUnit, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := struct {
		LaunchID int64 `json:"launch_id"`
	}{}
	decodeInto(t, w, &body)
	if body.LaunchID != l.ID {
		t.Fatalf("expected upload into launch %d, got %d", l.ID, body.LaunchID)
	}

	launch, err := e.store.Launch(l.ID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if launch.StartedBy != "http://ci/job/2/" {
		t.Errorf("started_by not copied from the data field: %q", launch.StartedBy)
	}
	if launch.Build == nil || launch.Build.Hash != "abc" {
		t.Errorf("expected a build with the hash defaulted to the first commit, got %+v", launch.Build)
	}
	if launch.Counts.Passed != 1 || launch.Counts.Failed != 1 || launch.Counts.Total != 2 {
		t.Errorf("unexpected counts %+v", launch.Counts)
	}
	if _, ok := launch.Parameters["options"]; !ok {
		t.Errorf("expected upload options stored in parameters, got %v", launch.Parameters)
	}
	if _, ok := launch.Parameters["env"]; !ok {
		t.Errorf("expected env stored in parameters, got %v", launch.Parameters)
	}
}

func TestUploadBrokenReportLeavesComment(t *testing.T) {
	e := newTestEnv(t, nil)
	_, tp := e.seedPlan(t)

	w := e.upload(t, fmt.Sprintf("/api/external/report-xunit/%d/junit/report.xml", tp.ID),
		nil, "<testsuites><broken", true)
	if w.Code != http.StatusOK {
		t.Fatalf("a broken report must still answer with the launch, got %d: %s", w.Code, w.Body.String())
	}

	comments, err := e.store.Comments()
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("expected 1 parser comment, got %d", len(comments))
	}
	c := comments[0]
	if c.UserData.Username != "xml-parser" {
		t.Errorf("expected xml-parser comment author, got %q", c.UserData.Username)
	}
	if !strings.HasPrefix(c.Comment, "During xml parsing the following error is received:") {
		t.Errorf("unexpected comment %q", c.Comment)
	}
}

func TestPaging(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		e.store.CreateProject(name)
	}

	w := e.do(t, http.MethodGet, "/api/projects/?limit=2&offset=1", nil)
	projects := []store.Project{}
	count := decodeList(t, w, &projects)
	if count != 4 {
		t.Errorf("count must be the unpaged total, got %d", count)
	}
	if len(projects) != 2 || projects[0].Name != "b" {
		t.Errorf("unexpected page %v", projects)
	}
}
