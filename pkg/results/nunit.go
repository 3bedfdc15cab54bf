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

package results

import (
	"encoding/xml"
	"strconv"
	"strings"

	"io"

	"github.com/2gis/cdws/pkg/store"
)

// NUnit v2 report schema. Suites nest arbitrarily, test cases sit in the
// <results> element of their closest suite.
type nuTestResults struct {
	XMLName xml.Name      `xml:"test-results"`
	Suites  []nuTestSuite `xml:"test-suite"`
}

type nuTestSuite struct {
	Name    string    `xml:"name,attr"`
	Results nuResults `xml:"results"`
}

type nuResults struct {
	Suites []nuTestSuite `xml:"test-suite"`
	Cases  []nuTestCase  `xml:"test-case"`
}

type nuTestCase struct {
	Name     string     `xml:"name,attr"`
	Executed string     `xml:"executed,attr"`
	Success  string     `xml:"success,attr"`
	Time     string     `xml:"time,attr"`
	Failure  *nuFailure `xml:"failure"`
}

type nuFailure struct {
	Message    string `xml:"message"`
	StackTrace string `xml:"stack-trace"`
}

func parseNUnit(r io.Reader) ([]store.TestResult, float64, error) {
	report := nuTestResults{}
	if err := xml.NewDecoder(r).Decode(&report); err != nil {
		return nil, 0, err
	}

	out := []store.TestResult{}
	total := 0.0
	for _, suite := range report.Suites {
		walkNUnitSuite(suite, suite.Name, &out, &total)
	}
	return out, total, nil
}

func walkNUnitSuite(suite nuTestSuite, name string, out *[]store.TestResult, total *float64) {
	for _, tc := range suite.Results.Cases {
		res := store.TestResult{
			Name:     tc.Name,
			Suite:    name,
			Duration: parseSeconds(tc.Time),
		}
		switch {
		case nuFalse(tc.Executed):
			res.State = store.Skipped
		case nuFalse(tc.Success):
			res.State = store.Failed
			if tc.Failure != nil {
				res.FailureReason = strings.TrimSpace(tc.Failure.Message + "\n" + tc.Failure.StackTrace)
			}
		default:
			res.State = store.Passed
		}
		*total += res.Duration
		*out = append(*out, res)
	}
	for _, sub := range suite.Results.Suites {
		walkNUnitSuite(sub, sub.Name, out, total)
	}
}

// nuFalse reports whether an NUnit boolean attribute is an explicit false.
// Missing attributes default to true, matching how NUnit omits them.
func nuFalse(v string) bool {
	return strings.EqualFold(v, "false")
}

// parseSeconds parses a duration attribute. Reports in the wild omit the
// attribute or localize the decimal separator; both read as best effort.
func parseSeconds(v string) float64 {
	if v == "" {
		return 0
	}
	v = strings.Replace(v, ",", ".", 1)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
