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

// Package sched runs the periodic machinery: cron-scheduled metric
// calculations and the database cleanup job.
package sched

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/errlog"
	"github.com/2gis/cdws/pkg/store"
)

// MetricTask is the task identifier stored on metric periodic tasks.
const MetricTask = "metrics.tasks.run_metric_calculation"

// Scheduler keeps a cron runtime in sync with the enabled periodic tasks in
// the store. Task rows are the source of truth; the cron entries are rebuilt
// from them on every sync.
type Scheduler struct {
	store *store.Store
	cron  *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id   cron.EntryID
	spec string
}

// NewScheduler builds a scheduler over the given store.
func NewScheduler(s *store.Store) *Scheduler {
	return &Scheduler{
		store:   s,
		cron:    cron.New(),
		entries: map[string]scheduledEntry{},
	}
}

// Run syncs the cron entries on the given interval until the context is
// done. The first sync happens immediately.
func (s *Scheduler) Run(ctx context.Context, syncInterval time.Duration) error {
	s.cron.Start()
	defer s.cron.Stop()

	if err := s.Sync(); err != nil {
		errlog.LogError(err)
	}

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sync(); err != nil {
				errlog.LogError(err)
			}
		}
	}
}

// Sync reconciles the cron runtime against the periodic task table: new
// enabled tasks are scheduled, rescheduled tasks get fresh entries, removed
// or disabled tasks are dropped.
func (s *Scheduler) Sync() error {
	tasks, err := s.store.PeriodicTasks()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		crontab, err := s.store.Crontab(task.Crontab)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"task":  task.Name,
				"error": err,
			}).Warning("periodic task has no crontab row, skipping")
			continue
		}
		spec := crontab.Spec()
		seen[task.Name] = true

		if cur, ok := s.entries[task.Name]; ok {
			if cur.spec == spec {
				continue
			}
			s.cron.Remove(cur.id)
		}

		id, err := s.cron.AddFunc(spec, s.taskFunc(task))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"task":  task.Name,
				"spec":  spec,
				"error": err,
			}).Warning("couldn't schedule periodic task")
			continue
		}
		s.entries[task.Name] = scheduledEntry{id: id, spec: spec}
	}

	for name, entry := range s.entries {
		if !seen[name] {
			s.cron.Remove(entry.id)
			delete(s.entries, name)
		}
	}
	return nil
}

func (s *Scheduler) taskFunc(task store.PeriodicTask) func() {
	name, taskType, args := task.Name, task.Task, task.Args
	return func() {
		if taskType != MetricTask {
			logrus.WithField("task", name).Warning("unknown periodic task type")
			return
		}
		var ids []int64
		if err := json.Unmarshal([]byte(args), &ids); err != nil || len(ids) == 0 {
			logrus.WithFields(logrus.Fields{
				"task": name,
				"args": args,
			}).Warning("periodic task has bad args")
			return
		}
		value, err := CalculateMetric(s.store, ids[0])
		if err != nil {
			errlog.LogError(err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"metric": ids[0],
			"value":  value.Value,
		}).Info("metric calculated")
	}
}
