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

// Package config loads the server configuration from environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	defaultBindAddr    = "0.0.0.0:8080"
	defaultAPIPath     = "/api"
	defaultDatabase    = "cdws.db"
	defaultIssuePath   = "/rest/api/latest/issue/{issue_id}"
	defaultStatesValue = "Closed,Released"
)

// Config holds every tunable of the cdws server. Values are bound to
// environment variables; zero values fall back to the defaults below.
type Config struct {
	// BindAddr is the address the HTTP server listens on, e.g. 0.0.0.0:8080.
	BindAddr string `mapstructure:"bindaddr"`

	// APIPath is the URL prefix all REST routes are mounted under.
	APIPath string `mapstructure:"apipath"`

	// Database is the sqlite datasource name.
	Database string `mapstructure:"database"`

	// LogFile, when set, mirrors the log stream into this file as JSON.
	LogFile string `mapstructure:"logfile"`

	// AuthUser/AuthPassword guard the report upload endpoint.
	AuthUser     string `mapstructure:"authuser"`
	AuthPassword string `mapstructure:"authpassword"`

	// TrackerHost is the bug tracking system host, e.g. jira.local.
	TrackerHost string `mapstructure:"trackerhost"`

	// TrackerIssuePath is the issue resource path template. The literal
	// {issue_id} is replaced with the external issue id.
	TrackerIssuePath string `mapstructure:"trackerissuepath"`

	// BugUpdateHours is how long cached issue state is considered fresh.
	BugUpdateHours int `mapstructure:"bugupdatehours"`

	// BugExpireDays is how long a bug in an expired state is kept before
	// it is removed from the database.
	BugExpireDays int `mapstructure:"bugexpiredays"`

	// BugExpiredStates is a comma separated list of tracker status names
	// that count as expired (e.g. Closed).
	BugExpiredStates string `mapstructure:"bugexpiredstates"`

	// ReconcileMinutes is the period of the bug reconciliation job.
	ReconcileMinutes int `mapstructure:"reconcileminutes"`

	// ResultPreserveDays is how long test results are kept after their
	// launch finished.
	ResultPreserveDays int `mapstructure:"resultpreservedays"`

	// LastCommitsSize caps the number of commit hashes kept per build.
	LastCommitsSize int `mapstructure:"lastcommitssize"`

	// Workers is the size of the launch-item execution pool.
	Workers int `mapstructure:"workers"`
}

func setConfigDefaults(c *Config) {
	c.BindAddr = defaultBindAddr
	c.APIPath = defaultAPIPath
	c.Database = defaultDatabase
	c.TrackerIssuePath = defaultIssuePath
	c.BugExpiredStates = defaultStatesValue
	c.BugUpdateHours = 6
	c.BugExpireDays = 14
	c.ReconcileMinutes = 30
	c.ResultPreserveDays = 30
	c.LastCommitsSize = 15
	c.Workers = 4
}

// LoadConfig loads the cdws server configuration from environment variables,
// returning a Config struct with defaults applied.
func LoadConfig() (*Config, error) {
	config := &Config{}

	viper.BindEnv("bindaddr", "CDWS_BIND_ADDR")
	viper.BindEnv("apipath", "CDWS_API_PATH")
	viper.BindEnv("database", "CDWS_DATABASE")
	viper.BindEnv("logfile", "CDWS_LOG_FILE")
	viper.BindEnv("authuser", "CDWS_AUTH_USER")
	viper.BindEnv("authpassword", "CDWS_AUTH_PASSWORD")

	viper.BindEnv("trackerhost", "BUG_TRACKING_SYSTEM_HOST")
	viper.BindEnv("trackerissuepath", "BUG_TRACKING_SYSTEM_BUG_PATH")
	viper.BindEnv("bugupdatehours", "TIME_BEFORE_UPDATE_BUG_INFO")
	viper.BindEnv("bugexpiredays", "BUG_TIME_EXPIRED")
	viper.BindEnv("bugexpiredstates", "BUG_STATE_EXPIRED")
	viper.BindEnv("reconcileminutes", "BUG_RECONCILE_MINUTES")

	viper.BindEnv("resultpreservedays", "RESULT_PRESERVE_DAYS")
	viper.BindEnv("lastcommitssize", "LAST_COMMITS_SIZE")
	viper.BindEnv("workers", "CDWS_WORKERS")

	setConfigDefaults(config)

	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.WithStack(err)
	}

	return config, nil
}

// ExpiredStates splits the configured expired-state list.
func (c *Config) ExpiredStates() []string {
	var out []string
	for _, s := range strings.Split(c.BugExpiredStates, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BugFreshness is the window during which cached issue state is not re-polled.
func (c *Config) BugFreshness() time.Duration {
	return time.Duration(c.BugUpdateHours) * time.Hour
}

// BugExpiry is the retention window for bugs in an expired state.
func (c *Config) BugExpiry() time.Duration {
	return time.Duration(c.BugExpireDays) * 24 * time.Hour
}

// ReconcileInterval is the period of the bug reconciliation job.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileMinutes) * time.Minute
}
