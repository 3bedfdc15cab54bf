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

import "time"

// Test result states.
const (
	Passed = iota
	Failed
	Skipped
	Blocked
)

// Launch states.
const (
	Initialized = iota
	Finished
	InProgress
	Stopped
)

// Launch item types.
const (
	InitScript = iota
	AsyncCall
	Conclusive
)

// Stage states reported on dashboards.
const (
	StageSuccess = "success"
	StageDanger  = "danger"
)

// Project is a top level grouping of test plans and stages.
type Project struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Settings []ProjectSetting `json:"settings"`
}

// ProjectSetting is a key/value pair attached to a project.
type ProjectSetting struct {
	ID      int64  `json:"id"`
	Project int64  `json:"project"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// TestPlan is a named, project-scoped configuration describing which launch
// items run and how results are summarized.
type TestPlan struct {
	ID                  int64  `json:"id"`
	Project             int64  `json:"project"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	Hidden              bool   `json:"hidden"`
	Main                bool   `json:"main"`
	ShowInSummary       bool   `json:"show_in_summary"`
	ShowInTwodays       bool   `json:"show_in_twodays"`
	Filter              string `json:"filter"`
	VariableName        string `json:"variable_name"`
	VariableValueRegexp string `json:"variable_value_regexp"`
	Owner               string `json:"owner"`
}

// Counts is the aggregate of test result states for a launch.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Blocked int `json:"blocked"`
	Total   int `json:"total"`
}

// Launch is one execution run of a test plan.
type Launch struct {
	ID         int64                  `json:"id"`
	TestPlan   int64                  `json:"test_plan"`
	StartedBy  string                 `json:"started_by"`
	State      int                    `json:"state"`
	Counts     Counts                 `json:"counts"`
	Duration   float64                `json:"duration"`
	Parameters map[string]interface{} `json:"parameters"`
	Tasks      []string               `json:"tasks"`
	Build      *Build                 `json:"build"`
	Created    time.Time              `json:"created"`
	Finished   *time.Time             `json:"finished"`
}

// Build records what exactly was under test in a launch.
type Build struct {
	Launch      int64    `json:"launch"`
	Version     string   `json:"version"`
	Hash        string   `json:"hash"`
	Branch      string   `json:"branch"`
	LastCommits []string `json:"last_commits"`
}

// LaunchItem is a configured step of a test plan: an init script run before
// everything else, or an async call fanned out as its own task.
type LaunchItem struct {
	ID       int64  `json:"id"`
	TestPlan int64  `json:"test_plan"`
	Name     string `json:"name"`
	Command  string `json:"command"`
	Type     int    `json:"type"`
	Timeout  int    `json:"timeout"`
}

// TestResult is the outcome of a single test case within a launch.
type TestResult struct {
	ID            int64   `json:"id"`
	Launch        int64   `json:"launch"`
	Name          string  `json:"name"`
	Suite         string  `json:"suite"`
	State         int     `json:"state"`
	FailureReason string  `json:"failure_reason"`
	Duration      float64 `json:"duration"`
	LaunchItemID  int64   `json:"launch_item_id"`
}

// Bug mirrors an external issue tracker ticket.
type Bug struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Regexp     string    `json:"regexp"`
	State      string    `json:"status"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// Stage is a named CI pipeline stage whose last known state is shown on
// project dashboards.
type Stage struct {
	ID      int64     `json:"id"`
	Project int64     `json:"project"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Updated time.Time `json:"updated"`
}

// Comment is a free-form note attached to an arbitrary object.
type Comment struct {
	ID          int64     `json:"id"`
	Comment     string    `json:"comment"`
	ContentType string    `json:"content_type"`
	ObjectPK    string    `json:"object_pk"`
	UserData    UserData  `json:"user_data"`
	Created     time.Time `json:"created"`
}

// UserData identifies the author of a comment.
type UserData struct {
	Username string `json:"username"`
}

// Metric is a named scheduled calculation over a project's launches.
type Metric struct {
	ID       int64   `json:"id"`
	Project  int64   `json:"project"`
	Name     string  `json:"name"`
	Schedule string  `json:"schedule"`
	Handler  string  `json:"handler"`
	Query    string  `json:"query"`
	Weight   float64 `json:"weight"`
}

// MetricValue is one computed sample of a metric.
type MetricValue struct {
	ID      int64     `json:"id"`
	Metric  int64     `json:"metric"`
	Value   string    `json:"value"`
	Created time.Time `json:"created"`
}

// CrontabSchedule is one row of the shared crontab table. Rows are
// deduplicated on the full five-field spec and shared between periodic
// tasks.
type CrontabSchedule struct {
	ID          int64  `json:"id"`
	Minute      string `json:"minute"`
	Hour        string `json:"hour"`
	DayOfWeek   string `json:"day_of_week"`
	DayOfMonth  string `json:"day_of_month"`
	MonthOfYear string `json:"month_of_year"`
}

// Spec renders the schedule back into a five-field crontab line.
func (c CrontabSchedule) Spec() string {
	return c.Minute + " " + c.Hour + " " + c.DayOfMonth + " " + c.MonthOfYear + " " + c.DayOfWeek
}

// PeriodicTask binds a named task to a crontab schedule.
type PeriodicTask struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Task    string `json:"task"`
	Args    string `json:"args"`
	Crontab int64  `json:"crontab"`
	Enabled bool   `json:"enabled"`
}
