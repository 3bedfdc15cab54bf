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
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/2gis/cdws/pkg/store"
)

// Metric handler names accepted by the metrics API.
const (
	HandlerCount     = "count"
	HandlerAverage   = "average"
	HandlerMedian    = "median"
	HandlerCycletime = "cycletime"
)

// ValidHandler reports whether name is a known metric handler.
func ValidHandler(name string) bool {
	switch name {
	case HandlerCount, HandlerAverage, HandlerMedian, HandlerCycletime:
		return true
	}
	return false
}

// CalculateMetric runs the metric's handler over the finished launches of
// its project and stores the computed sample.
func CalculateMetric(s *store.Store, metricID int64) (*store.MetricValue, error) {
	m, err := s.Metric(metricID)
	if err != nil {
		return nil, err
	}

	launches, err := metricLaunches(s, m)
	if err != nil {
		return nil, err
	}

	var value float64
	switch m.Handler {
	case HandlerCount:
		value = float64(len(launches))
	case HandlerAverage:
		value = averageDuration(launches)
	case HandlerMedian:
		value = medianDuration(launches)
	case HandlerCycletime:
		value = averageDuration(launches) * m.Weight
	default:
		return nil, errors.Errorf("metric %d has unknown handler %q", m.ID, m.Handler)
	}

	return s.AddMetricValue(m.ID, fmt.Sprintf("%g", value))
}

// metricLaunches resolves the launch set a metric is computed over: finished
// launches of the metric's project from the last day. A non-empty query
// narrows the set to the test plan of that name.
func metricLaunches(s *store.Store, m *store.Metric) ([]store.Launch, error) {
	plans, err := s.TestPlans(store.TestPlanFilter{ProjectIDs: []int64{m.Project}})
	if err != nil {
		return nil, err
	}

	var planIDs []int64
	for _, plan := range plans {
		if m.Query != "" && plan.Name != m.Query {
			continue
		}
		planIDs = append(planIDs, plan.ID)
	}
	if len(planIDs) == 0 {
		return nil, nil
	}

	days := 1
	launches, err := s.Launches(store.LaunchFilter{TestPlanIDs: planIDs, Days: &days})
	if err != nil {
		return nil, err
	}

	out := []store.Launch{}
	for _, l := range launches {
		if l.State == store.Finished {
			out = append(out, l)
		}
	}
	return out, nil
}

func averageDuration(launches []store.Launch) float64 {
	if len(launches) == 0 {
		return 0
	}
	total := 0.0
	for _, l := range launches {
		total += l.Duration
	}
	return total / float64(len(launches))
}

func medianDuration(launches []store.Launch) float64 {
	if len(launches) == 0 {
		return 0
	}
	durations := make([]float64, len(launches))
	for i, l := range launches {
		durations[i] = l.Duration
	}
	sort.Float64s(durations)

	mid := len(durations) / 2
	if len(durations)%2 == 0 {
		return (durations[mid-1] + durations[mid]) / 2
	}
	return durations[mid]
}
