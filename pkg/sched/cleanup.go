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

package sched

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/errlog"
	"github.com/2gis/cdws/pkg/store"
)

// Cleanup prunes old data: test results of launches that finished long ago,
// and crontab rows no periodic task references anymore.
type Cleanup struct {
	Store *store.Store

	// PreserveDays is how long test results are kept after their launch
	// finishes.
	PreserveDays int
}

// Run performs a cleanup pass once a day until the context is done.
func (c *Cleanup) Run(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RunOnce(); err != nil {
				errlog.LogError(err)
			}
		}
	}
}

// RunOnce performs a single cleanup pass.
func (c *Cleanup) RunOnce() error {
	cutoff := time.Now().AddDate(0, 0, -c.PreserveDays)
	launchIDs, err := c.Store.ExpiredLaunchIDs(cutoff)
	if err != nil {
		return err
	}
	if len(launchIDs) > 0 {
		deleted, err := c.Store.DeleteResultsForLaunches(launchIDs)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"launches": len(launchIDs),
			"results":  deleted,
		}).Info("pruned old test results")
	}

	swept, err := c.Store.SweepUnusedCrontabs()
	if err != nil {
		return err
	}
	if swept > 0 {
		logrus.WithField("crontabs", swept).Info("swept unused crontab rows")
	}
	return nil
}
