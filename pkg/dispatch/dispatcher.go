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

// Package dispatch runs launch-item commands as asynchronous tasks and
// keeps track of their status. It is deliberately in-process: cdws does
// not depend on an external task broker, a bounded worker pool is enough
// for the fan-out a test plan produces.
package dispatch

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Task statuses, mirroring the lifecycle CI clients already understand.
const (
	StatusPending = "PENDING"
	StatusStarted = "STARTED"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusRevoked = "REVOKED"
)

// TaskStatus is the externally visible state of one task. Result is null
// until the task produced output or an error.
type TaskStatus struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Result *string `json:"result"`
}

type taskState struct {
	status  string
	result  *string
	command string
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// queueSize bounds the dispatch backlog; Submit blocks when it is full.
const queueSize = 1024

// Dispatcher owns the worker pool and the task registry. Workers consume a
// FIFO queue, so tasks submitted earlier always start earlier; the executor
// relies on that to run init scripts before async calls. Statuses of tasks
// it never saw read as PENDING, which matches what polling clients expect
// while a task is still queued.
type Dispatcher struct {
	mu    sync.Mutex
	tasks map[string]*taskState

	work chan string
	wg   sync.WaitGroup
}

// NewDispatcher builds a dispatcher with the given pool size.
func NewDispatcher(workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		tasks: make(map[string]*taskState),
		work:  make(chan string, queueSize),
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Submit queues the command for execution and returns the task id
// immediately. The command runs through the shell with the given timeout.
func (d *Dispatcher) Submit(command string, timeout time.Duration) string {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.tasks[id] = &taskState{
		status:  StatusPending,
		command: command,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.mu.Unlock()

	d.wg.Add(1)
	d.work <- id
	return id
}

func (d *Dispatcher) worker() {
	for id := range d.work {
		d.run(id)
	}
}

func (d *Dispatcher) run(id string) {
	defer d.wg.Done()

	d.mu.Lock()
	st := d.tasks[id]
	d.mu.Unlock()

	// Revoked while still queued.
	if st.ctx.Err() != nil {
		d.setStatus(id, StatusRevoked, nil)
		return
	}

	ctx := st.ctx
	if st.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}

	d.setStatus(id, StatusStarted, nil)
	logrus.WithFields(logrus.Fields{"task": id, "command": st.command}).Info("task started")

	out, err := runCommand(ctx, st.command)
	result := strings.TrimSpace(out)

	switch {
	case st.ctx.Err() == context.Canceled:
		d.setStatus(id, StatusRevoked, nil)
		logrus.WithField("task", id).Info("task revoked")
	case err != nil:
		msg := err.Error()
		if result != "" {
			msg = result
		}
		d.setStatus(id, StatusFailure, &msg)
		logrus.WithFields(logrus.Fields{"task": id, "error": err}).Warning("task failed")
	default:
		d.setStatus(id, StatusSuccess, &result)
		logrus.WithField("task", id).Info("task finished")
	}
}

// runCommand runs the shell command in its own process group and kills the
// whole group on cancellation. Killing only the shell would leave children
// holding the output pipes and the worker stuck until they exit on their
// own.
func runCommand(ctx context.Context, command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return "", err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return buf.String(), err
	case <-ctx.Done():
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return buf.String(), ctx.Err()
	}
}

func (d *Dispatcher) setStatus(id, status string, result *string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.tasks[id]
	if !ok {
		return
	}
	// A revoked task stays revoked even if the goroutine catches up later.
	if st.status == StatusRevoked && status != StatusRevoked {
		return
	}
	st.status = status
	st.result = result
}

// Status reports the current state of a task. Unknown ids read as PENDING
// with a null result.
func (d *Dispatcher) Status(id string) TaskStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.tasks[id]
	if !ok {
		return TaskStatus{ID: id, Status: StatusPending}
	}
	return TaskStatus{ID: id, Status: st.status, Result: st.result}
}

// Revoke cancels the given tasks. Running commands are killed through
// their context; queued ones never start.
func (d *Dispatcher) Revoke(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		st, ok := d.tasks[id]
		if !ok {
			continue
		}
		if st.status == StatusPending || st.status == StatusStarted {
			st.status = StatusRevoked
			st.result = nil
			st.cancel()
		}
	}
}

// Wait blocks until every submitted task has finished. Used by tests and
// by graceful shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
