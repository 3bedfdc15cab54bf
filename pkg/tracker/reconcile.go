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

package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/2gis/cdws/pkg/errlog"
	"github.com/2gis/cdws/pkg/store"
)

// Reconciler periodically re-polls the tracker for cached bugs and applies
// the freshness/expiry policy.
type Reconciler struct {
	Store  *store.Store
	Client *Client

	// Freshness is how long cached issue state is trusted. Bugs whose
	// state is in ExpiredStates are re-polled regardless, so a reopened
	// ticket is noticed promptly.
	Freshness time.Duration

	// Expiry is how long a bug may sit in an expired state before the
	// record is dropped entirely.
	Expiry time.Duration

	// ExpiredStates lists the tracker status names treated as closed.
	ExpiredStates []string
}

// Run polls on the given interval until the context is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.UpdateBugs(); err != nil {
				errlog.LogError(err)
			}
		}
	}
}

// UpdateBugs performs a single reconciliation pass over all cached bugs.
func (r *Reconciler) UpdateBugs() error {
	bugs, err := r.Store.Bugs(nil)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, bug := range bugs {
		stale := now.Sub(bug.Updated) >= r.Freshness
		if !stale && !r.isExpiredState(bug.State) {
			continue
		}

		issue, err := r.Client.Issue(bug.ExternalID)
		if err != nil {
			// Unknown issues and tracker hiccups both leave the
			// cached state alone until the next pass.
			logrus.WithFields(logrus.Fields{
				"bug":   bug.ExternalID,
				"error": err,
			}).Warning("couldn't refresh bug")
			continue
		}

		if r.isExpiredState(issue.Status) && now.Sub(bug.Updated) >= r.Expiry {
			logrus.WithField("bug", bug.ExternalID).Info("removing expired bug")
			if err := r.Store.DeleteBug(bug.ID); err != nil {
				return err
			}
			continue
		}

		if issue.Status != bug.State || issue.Summary != bug.Name {
			if err := r.Store.UpdateBugState(bug.ID, issue.Summary, issue.Status); err != nil {
				return err
			}
			continue
		}
		// An unchanged bug in an expired state keeps its old timestamp;
		// bumping it on every pass would push the expiry cutoff away
		// forever.
		if r.isExpiredState(bug.State) {
			continue
		}
		if err := r.Store.TouchBug(bug.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) isExpiredState(state string) bool {
	for _, s := range r.ExpiredStates {
		if s == state {
			return true
		}
	}
	return false
}
