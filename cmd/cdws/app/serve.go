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

package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2gis/cdws/pkg/api"
	"github.com/2gis/cdws/pkg/config"
	"github.com/2gis/cdws/pkg/dispatch"
	"github.com/2gis/cdws/pkg/errlog"
	"github.com/2gis/cdws/pkg/sched"
	"github.com/2gis/cdws/pkg/store"
	"github.com/2gis/cdws/pkg/tracker"
)

// schedulerSyncInterval is how often the cron runtime is reconciled against
// the periodic task table.
const schedulerSyncInterval = time.Minute

func NewCmdServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cdws API server and background jobs",
		RunE:  runServe,
		Args:  cobra.ExactArgs(0),
	}
	cmd.Flags().Var(&errlog.LogLevel, "level", "Log level (panic, fatal, error, warn, info, debug, trace)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := errlog.SetLevel(errlog.LogLevel.String()); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "couldn't load configuration")
	}

	if cfg.LogFile != "" {
		logrus.AddHook(lfshook.NewHook(cfg.LogFile, &logrus.JSONFormatter{}))
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return errors.Wrap(err, "couldn't open database")
	}
	defer db.Close()

	dispatcher := dispatch.NewDispatcher(cfg.Workers)
	executor := &dispatch.Executor{
		Store:           db,
		Dispatcher:      dispatcher,
		LastCommitsSize: cfg.LastCommitsSize,
	}

	var trackerClient *tracker.Client
	if cfg.TrackerHost != "" {
		trackerClient = tracker.NewClient("https://"+cfg.TrackerHost, cfg.TrackerIssuePath)
	}

	handler := api.NewServer(api.Dependencies{
		Store:        db,
		Dispatcher:   dispatcher,
		Executor:     executor,
		Tracker:      trackerClient,
		APIPath:      cfg.APIPath,
		AuthUser:     cfg.AuthUser,
		AuthPassword: cfg.AuthPassword,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Addr: cfg.BindAddr, Handler: handler}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithField("addr", cfg.BindAddr).Info("cdws listening")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "http shutdown failed")
	})

	if trackerClient != nil {
		reconciler := &tracker.Reconciler{
			Store:         db,
			Client:        trackerClient,
			Freshness:     cfg.BugFreshness(),
			Expiry:        cfg.BugExpiry(),
			ExpiredStates: cfg.ExpiredStates(),
		}
		g.Go(func() error {
			err := reconciler.Run(ctx, cfg.ReconcileInterval())
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	scheduler := sched.NewScheduler(db)
	g.Go(func() error {
		err := scheduler.Run(ctx, schedulerSyncInterval)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	cleanup := &sched.Cleanup{Store: db, PreserveDays: cfg.ResultPreserveDays}
	g.Go(func() error {
		err := cleanup.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	dispatcher.Wait()
	return nil
}
