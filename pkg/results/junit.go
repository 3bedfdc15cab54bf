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

// Package results parses uploaded xUnit report files (JUnit and NUnit XML)
// into test results and aggregates their durations.
package results

import (
	"encoding/xml"
	"io"

	"github.com/pkg/errors"

	"github.com/2gis/cdws/pkg/store"
)

// Report formats accepted by the upload endpoint.
const (
	FormatJUnit = "junit"
	FormatNUnit = "nunit"
)

// ErrUnknownFormat is returned for formats other than junit/nunit.
var ErrUnknownFormat = errors.New("unknown file format")

// Parse reads an xUnit report of the given format and returns the test
// results (without launch ids) plus the summed duration in seconds.
func Parse(format string, r io.Reader) ([]store.TestResult, float64, error) {
	switch format {
	case FormatJUnit:
		return parseJUnit(r)
	case FormatNUnit:
		return parseNUnit(r)
	default:
		return nil, 0, ErrUnknownFormat
	}
}

// JUnit report schema. Both a bare <testsuite> root and a <testsuites>
// wrapper are seen in the wild; juXMLRoot accepts either.
type juTestSuites struct {
	XMLName xml.Name      `xml:"testsuites"`
	Suites  []juTestSuite `xml:"testsuite"`
}

type juTestSuite struct {
	Name      string       `xml:"name,attr"`
	TestCases []juTestCase `xml:"testcase"`
}

type juTestCase struct {
	Name      string     `xml:"name,attr"`
	ClassName string     `xml:"classname,attr"`
	Time      string     `xml:"time,attr"`
	Failure   *juMessage `xml:"failure"`
	Error     *juMessage `xml:"error"`
	Skipped   *juMessage `xml:"skipped"`
	SystemOut string     `xml:"system-out"`
}

type juMessage struct {
	Message string `xml:"message,attr"`
	Value   string `xml:",chardata"`
}

func (m *juMessage) text() string {
	if m == nil {
		return ""
	}
	if m.Value != "" {
		return m.Value
	}
	return m.Message
}

func parseJUnit(r io.Reader) ([]store.TestResult, float64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "couldn't read report")
	}

	var suites []juTestSuite
	wrapper := juTestSuites{}
	if err := xml.Unmarshal(raw, &wrapper); err == nil {
		suites = wrapper.Suites
	} else {
		single := juTestSuite{}
		if err := xml.Unmarshal(raw, &single); err != nil {
			return nil, 0, err
		}
		suites = []juTestSuite{single}
	}

	out := []store.TestResult{}
	total := 0.0
	for _, suite := range suites {
		for _, tc := range suite.TestCases {
			res := store.TestResult{
				Name:     tc.Name,
				Suite:    suiteName(suite.Name, tc.ClassName),
				Duration: parseSeconds(tc.Time),
			}
			switch {
			case tc.Error != nil:
				// Errors come from the harness rather than an
				// assertion, so the test counts as blocked and
				// system-out is kept for debugging.
				res.State = store.Blocked
				res.FailureReason = tc.Error.text() + tc.SystemOut
			case tc.Failure != nil:
				res.State = store.Failed
				res.FailureReason = tc.Failure.text()
			case tc.Skipped != nil:
				res.State = store.Skipped
			default:
				res.State = store.Passed
			}
			total += res.Duration
			out = append(out, res)
		}
	}
	return out, total, nil
}

func suiteName(suite, class string) string {
	if class != "" {
		return class
	}
	return suite
}
