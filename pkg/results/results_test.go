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
	"math"
	"strings"
	"testing"

	"github.com/2gis/cdws/pkg/store"
)

const junitReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="auth" tests="4">
    <testcase classname="auth.login" name="test_login" time="0.1"/>
    <testcase classname="auth.login" name="test_bad_password" time="0.2">
      <failure message="assert failed">expected 403, got 200</failure>
    </testcase>
    <testcase classname="auth.login" name="test_sso" time="0">
      <skipped message="sso disabled"/>
    </testcase>
    <testcase classname="auth.login" name="test_ldap" time="0.1">
      <error message="connection refused"/>
      <system-out>ldap://auth.local unreachable</system-out>
    </testcase>
  </testsuite>
</testsuites>`

const junitBareSuite = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="auth" tests="1">
  <testcase name="test_login" time="0.1"/>
</testsuite>`

const nunitReport = `<?xml version="1.0" encoding="UTF-8"?>
<test-results name="run" total="3">
  <test-suite name="Web">
    <results>
      <test-suite name="Web.Login">
        <results>
          <test-case name="LoginOk" executed="True" success="True" time="0.1"/>
          <test-case name="LoginFails" executed="True" success="False" time="0,1">
            <failure>
              <message>wrong status</message>
              <stack-trace>at LoginTest.cs:42</stack-trace>
            </failure>
          </test-case>
          <test-case name="LoginSso" executed="False"/>
        </results>
      </test-suite>
    </results>
  </test-suite>
</test-results>`

func countStates(results []store.TestResult) map[int]int {
	out := map[int]int{}
	for _, r := range results {
		out[r.State]++
	}
	return out
}

func TestParseJUnit(t *testing.T) {
	results, total, err := Parse(FormatJUnit, strings.NewReader(junitReport))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	states := countStates(results)
	if states[store.Passed] != 1 || states[store.Failed] != 1 ||
		states[store.Skipped] != 1 || states[store.Blocked] != 1 {
		t.Errorf("unexpected state distribution: %v", states)
	}
	if math.Abs(total-0.4) > 1e-9 {
		t.Errorf("expected total duration 0.4, got %v", total)
	}

	for _, r := range results {
		if r.Suite != "auth.login" {
			t.Errorf("suite should come from classname, got %q", r.Suite)
		}
		switch r.Name {
		case "test_bad_password":
			if r.FailureReason != "expected 403, got 200" {
				t.Errorf("failure reason mismatch: %q", r.FailureReason)
			}
		case "test_ldap":
			if !strings.Contains(r.FailureReason, "connection refused") ||
				!strings.Contains(r.FailureReason, "ldap://auth.local unreachable") {
				t.Errorf("blocked reason should include error and system-out, got %q", r.FailureReason)
			}
		}
	}
}

func TestParseJUnitBareSuite(t *testing.T) {
	results, _, err := Parse(FormatJUnit, strings.NewReader(junitBareSuite))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(results) != 1 || results[0].State != store.Passed {
		t.Errorf("expected one passed result, got %v", results)
	}
}

func TestParseNUnit(t *testing.T) {
	results, total, err := Parse(FormatNUnit, strings.NewReader(nunitReport))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	states := countStates(results)
	if states[store.Passed] != 1 || states[store.Failed] != 1 || states[store.Skipped] != 1 {
		t.Errorf("unexpected state distribution: %v", states)
	}
	// 0.1 plus the comma-formatted 0,1.
	if math.Abs(total-0.2) > 1e-9 {
		t.Errorf("expected total duration 0.2, got %v", total)
	}

	for _, r := range results {
		if r.Name == "LoginFails" {
			if !strings.Contains(r.FailureReason, "wrong status") ||
				!strings.Contains(r.FailureReason, "LoginTest.cs:42") {
				t.Errorf("failure reason should include message and stack trace, got %q", r.FailureReason)
			}
		}
		if r.Suite != "Web.Login" {
			t.Errorf("suite should be the enclosing test-suite, got %q", r.Suite)
		}
	}
}

func TestParseUnknownFormat(t *testing.T) {
	if _, _, err := Parse("xunit", strings.NewReader("")); err != ErrUnknownFormat {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestParseBrokenXML(t *testing.T) {
	if _, _, err := Parse(FormatJUnit, strings.NewReader("<testsuites><broken")); err == nil {
		t.Error("expected an error for truncated xml")
	}
}
