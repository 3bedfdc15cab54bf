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

package dispatch

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/store"
)

// ExecuteOptions carries the build metadata a caller attaches to a launch.
type ExecuteOptions struct {
	StartedBy   string   `json:"started_by"`
	Version     string   `json:"version"`
	Hash        string   `json:"hash"`
	Branch      string   `json:"branch"`
	LastCommits []string `json:"last_commits"`
}

// Executor turns a test plan into a launch: it resolves the plan's launch
// items, deduplicates init scripts, creates the launch record and fans the
// items out as tasks.
type Executor struct {
	Store      *store.Store
	Dispatcher *Dispatcher

	// LastCommitsSize caps the commit list stored on the build.
	LastCommitsSize int
}

// Execute runs the given test plan. When itemIDs is non-nil only the plan
// items in that set are considered. Returns the id of the created launch.
func (e *Executor) Execute(planID int64, opts ExecuteOptions, itemIDs []int64) (int64, error) {
	items, err := e.Store.LaunchItems(planID)
	if err != nil {
		return 0, err
	}
	if itemIDs != nil {
		items = selectItems(items, itemIDs)
	}
	items = dedupeInitScripts(items)
	if len(items) == 0 {
		return 0, errors.Errorf("no launch items to execute for test plan %d", planID)
	}

	launch, err := e.Store.CreateLaunch(planID, opts.StartedBy)
	if err != nil {
		return 0, err
	}

	build := &store.Build{
		Launch:      launch.ID,
		Version:     opts.Version,
		Hash:        opts.Hash,
		Branch:      opts.Branch,
		LastCommits: capCommits(opts.LastCommits, e.LastCommitsSize),
	}
	if build.Hash == "" && len(build.LastCommits) > 0 {
		build.Hash = build.LastCommits[0]
	}
	if err := e.Store.SaveBuild(build); err != nil {
		return 0, err
	}

	for _, item := range items {
		taskID := e.Dispatcher.Submit(item.Command, time.Duration(item.Timeout)*time.Second)
		launch.Tasks = append(launch.Tasks, taskID)
	}
	launch.State = store.InProgress
	if err := e.Store.UpdateLaunch(launch); err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"launch":    launch.ID,
		"test_plan": planID,
		"tasks":     len(launch.Tasks),
	}).Info("launch dispatched")
	return launch.ID, nil
}

// Terminate revokes every task of the launch and marks it stopped.
func (e *Executor) Terminate(launchID int64) error {
	launch, err := e.Store.Launch(launchID)
	if err != nil {
		return err
	}
	e.Dispatcher.Revoke(launch.Tasks)

	now := time.Now().UTC()
	launch.State = store.Stopped
	launch.Finished = &now
	return e.Store.UpdateLaunch(launch)
}

// selectItems keeps the plan items whose id is in wanted. Unknown ids are
// silently dropped: callers may pass ids belonging to other plans.
func selectItems(items []store.LaunchItem, wanted []int64) []store.LaunchItem {
	set := map[int64]bool{}
	for _, id := range wanted {
		set[id] = true
	}
	out := []store.LaunchItem{}
	for _, item := range items {
		if set[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

// dedupeInitScripts keeps only the first init script of a plan. Plans
// accumulate init scripts over time and running more than one deploy per
// launch is never what anyone wants.
func dedupeInitScripts(items []store.LaunchItem) []store.LaunchItem {
	out := []store.LaunchItem{}
	seenInit := false
	for _, item := range items {
		if item.Type == store.InitScript {
			if seenInit {
				continue
			}
			seenInit = true
		}
		out = append(out, item)
	}
	return out
}

func capCommits(commits []string, limit int) []string {
	if limit > 0 && len(commits) > limit {
		return commits[:limit]
	}
	return commits
}
