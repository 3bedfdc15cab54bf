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

// Package tracker talks to the external bug tracking system and keeps the
// locally cached bug records in sync with it.
package tracker

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
)

const issueIDPlaceholder = "{issue_id}"

// Issue is the slice of a tracker ticket cdws cares about.
type Issue struct {
	Key     string
	Summary string
	Status  string
}

// IssueError is a structured rejection from the tracker (unknown issue,
// validation problems). It is distinct from transport errors so callers
// can surface the tracker's own message to API clients.
type IssueError struct {
	Message string
}

func (e *IssueError) Error() string { return e.Message }

// Client fetches issues from a JIRA-style REST API. The transport retries
// with backoff; trackers get restarted more often than one would hope.
type Client struct {
	baseURL   string
	issuePath string
	hc        *pester.Client
}

// NewClient builds a tracker client. baseURL is scheme://host, issuePath
// is the resource template containing the {issue_id} placeholder.
func NewClient(baseURL, issuePath string) *Client {
	hc := pester.New()
	hc.MaxRetries = 3
	hc.Backoff = pester.ExponentialBackoff
	hc.Timeout = 30 * time.Second
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		issuePath: issuePath,
		hc:        hc,
	}
}

// issueResponse covers both the happy path and the tracker's error shape.
type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Summary string `json:"summary"`
	} `json:"fields"`
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// Issue fetches a single issue by its external id. Tracker-side rejections
// come back as *IssueError.
func (c *Client) Issue(externalID string) (*Issue, error) {
	url := c.baseURL + strings.Replace(c.issuePath, issueIDPlaceholder, externalID, 1)

	resp, err := c.hc.Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't reach tracker at %v", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Errorf("tracker returned %v for %v", resp.StatusCode, url)
	}

	body := issueResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(err, "couldn't decode tracker response for %v", externalID)
	}

	if len(body.ErrorMessages) > 0 {
		return nil, &IssueError{Message: body.ErrorMessages[0]}
	}
	if len(body.Errors) > 0 {
		// The tracker keys validation errors by field name; the key is
		// the most useful part to surface.
		for field := range body.Errors {
			return nil, &IssueError{Message: field}
		}
	}

	return &Issue{
		Key:     body.Key,
		Summary: body.Fields.Summary,
		Status:  body.Fields.Status.Name,
	}, nil
}
