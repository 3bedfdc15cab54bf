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

package store

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("couldn't open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateProjectDedup(t *testing.T) {
	s := testStore(t)

	first, err := s.CreateProject("DGIS")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateProject("DGIS")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same project on duplicate create, got %d and %d", first.ID, second.ID)
	}

	projects, err := s.Projects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("expected 1 project, got %d", len(projects))
	}
}

func TestProjectSettings(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")

	if _, err := s.UpsertProjectSetting(p.ID, "key", "one"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertProjectSetting(p.ID, "key", "two"); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.Project(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Settings) != 1 {
		t.Fatalf("expected 1 setting, got %d", len(got.Settings))
	}
	if got.Settings[0].Value != "two" {
		t.Errorf("expected updated value %q, got %q", "two", got.Settings[0].Value)
	}

	if err := s.DeleteProjectSetting(p.ID, "missing"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestCreateTestPlanDedup(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")

	first, err := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke", Hidden: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same plan on duplicate create, got %d and %d", first.ID, second.ID)
	}
}

func TestCalculateCounts(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")
	tp, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})
	l, _ := s.CreateLaunch(tp.ID, "user")

	_, err := s.CreateTestResults([]TestResult{
		{Launch: l.ID, Name: "a", State: Passed},
		{Launch: l.ID, Name: "b", State: Passed},
		{Launch: l.ID, Name: "c", State: Failed},
		{Launch: l.ID, Name: "d", State: Skipped},
		{Launch: l.ID, Name: "e", State: Blocked},
	})
	if err != nil {
		t.Fatalf("insert results: %v", err)
	}

	counts, err := s.CalculateCounts(l.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	want := &Counts{Passed: 2, Failed: 1, Skipped: 1, Blocked: 1, Total: 5}
	if diff := pretty.Compare(want, counts); diff != "" {
		t.Errorf("unexpected counts, diff: %v", diff)
	}
}

func TestLaunchFilterByHashes(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")
	tp, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})

	l1, _ := s.CreateLaunch(tp.ID, "user")
	s.SaveBuild(&Build{Launch: l1.ID, Hash: "abc", LastCommits: []string{"abc", "def"}})
	l2, _ := s.CreateLaunch(tp.ID, "user")
	s.SaveBuild(&Build{Launch: l2.ID, Hash: "zzz", LastCommits: []string{"zzz"}})

	got, err := s.Launches(LaunchFilter{BuildHashIn: []string{"def"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != l1.ID {
		t.Errorf("expected only launch %d via last_commits match, got %v", l1.ID, got)
	}
}

func TestTestResultHistory(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")
	tp, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})
	other, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "full"})

	l1, _ := s.CreateLaunch(tp.ID, "user")
	l2, _ := s.CreateLaunch(tp.ID, "user")
	l3, _ := s.CreateLaunch(other.ID, "user")

	created, err := s.CreateTestResults([]TestResult{
		{Launch: l1.ID, Name: "login", Suite: "auth", State: Passed},
		{Launch: l2.ID, Name: "login", Suite: "auth", State: Failed},
		{Launch: l2.ID, Name: "logout", Suite: "auth", State: Passed},
		{Launch: l3.ID, Name: "login", Suite: "auth", State: Passed},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.TestResults(TestResultFilter{History: created[0].ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// Two runs of auth/login inside the seed's test plan; the run in the
	// other plan stays out.
	if len(got) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(got))
	}
}

func TestTestResultNegativeSearch(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")
	tp, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})
	l, _ := s.CreateLaunch(tp.ID, "user")

	_, err := s.CreateTestResults([]TestResult{
		{Launch: l.ID, Name: "a", State: Failed, FailureReason: "TimeoutException in step 3"},
		{Launch: l.ID, Name: "b", State: Failed, FailureReason: "assert 1 == 2"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.TestResults(TestResultFilter{NegativeSearch: "Exception"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "b" {
		t.Errorf("expected only the non-matching result, got %v", got)
	}

	if _, err := s.TestResults(TestResultFilter{NegativeSearch: "("}); err == nil {
		t.Error("expected an error for a broken regexp")
	}
}

func TestBugsByPrefix(t *testing.T) {
	s := testStore(t)
	s.CreateBug(&Bug{ExternalID: "ISSUE-1", Name: "one", State: "Open"})
	s.CreateBug(&Bug{ExternalID: "JIRA-2", Name: "two", State: "Open"})
	s.CreateBug(&Bug{ExternalID: "OTHER-3", Name: "three", State: "Open"})

	got, err := s.Bugs([]string{"ISSUE", "JIRA"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 bugs for the prefixes, got %d", len(got))
	}

	all, err := s.Bugs(nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 bugs without a prefix filter, got %d", len(all))
	}
}

func TestSetStageState(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")

	first, err := s.SetStageState(p.ID, "deploy", StageSuccess)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	second, err := s.SetStageState(p.ID, "deploy", StageDanger)
	if err != nil {
		t.Fatalf("set again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected stage get-or-create to reuse row %d, got %d", first.ID, second.ID)
	}
	if second.State != StageDanger {
		t.Errorf("expected state %q, got %q", StageDanger, second.State)
	}
}

func TestCrontabSharing(t *testing.T) {
	s := testStore(t)

	a, err := s.GetOrCreateCrontab("0 1 * * *")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.GetOrCreateCrontab("0 1 * * *")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("expected shared crontab row, got %d and %d", a.ID, b.ID)
	}
	if spec := a.Spec(); spec != "0 1 * * *" {
		t.Errorf("spec roundtrip broken: %q", spec)
	}

	if _, err := s.GetOrCreateCrontab("0 1 * *"); err == nil {
		t.Error("expected an error for a 4 field spec")
	}
}

func TestSweepUnusedCrontabs(t *testing.T) {
	s := testStore(t)

	used, _ := s.GetOrCreateCrontab("0 1 * * *")
	s.GetOrCreateCrontab("30 2 * * *")
	if _, err := s.UpsertPeriodicTask("metric-1", "metrics.tasks.run_metric_calculation", "[1]", used.ID); err != nil {
		t.Fatalf("upsert task: %v", err)
	}

	swept, err := s.SweepUnusedCrontabs()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("expected 1 swept row, got %d", swept)
	}
	left, _ := s.Crontabs()
	if len(left) != 1 || left[0].ID != used.ID {
		t.Errorf("expected only the referenced crontab to survive, got %v", left)
	}
}

func TestDeleteMetricKeepsCrontab(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")

	m, err := s.CreateMetric(&Metric{Project: p.ID, Name: "daily", Schedule: "0 1 * * *", Handler: "count"})
	if err != nil {
		t.Fatalf("create metric: %v", err)
	}
	crontab, _ := s.GetOrCreateCrontab(m.Schedule)
	if _, err := s.UpsertPeriodicTask(MetricTaskName(m.ID), "metrics.tasks.run_metric_calculation", "[1]", crontab.ID); err != nil {
		t.Fatalf("bind task: %v", err)
	}
	if _, err := s.AddMetricValue(m.ID, "42"); err != nil {
		t.Fatalf("add value: %v", err)
	}

	if err := s.DeleteMetric(m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Metric(m.ID); err != ErrNotFound {
		t.Errorf("expected metric gone, got %v", err)
	}
	values, _ := s.MetricValues(m.ID)
	if len(values) != 0 {
		t.Errorf("expected values gone, got %d", len(values))
	}
	if _, err := s.PeriodicTaskByName(MetricTaskName(m.ID)); err != ErrNotFound {
		t.Errorf("expected periodic task gone, got %v", err)
	}
	crontabs, _ := s.Crontabs()
	if len(crontabs) != 1 {
		t.Errorf("crontab rows are shared and must survive metric deletion, got %d", len(crontabs))
	}
}

func TestExpiredLaunchIDs(t *testing.T) {
	s := testStore(t)
	p, _ := s.CreateProject("DGIS")
	tp, _ := s.CreateTestPlan(&TestPlan{Project: p.ID, Name: "smoke"})

	old, _ := s.CreateLaunch(tp.ID, "user")
	past := time.Now().AddDate(0, 0, -60)
	old.Finished = &past
	old.State = Finished
	if err := s.UpdateLaunch(old); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.CreateLaunch(tp.ID, "user") // never finished

	ids, err := s.ExpiredLaunchIDs(time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Errorf("expected only the old launch, got %v", ids)
	}
}
