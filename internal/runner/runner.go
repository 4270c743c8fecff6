// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package runner provides lifecycle glue for goroutines that own an event
// loop: start once, observe completion through a future, join with an
// optional timeout.
package runner

import (
	"time"

	"go.uber.org/atomic"
)

// Runner runs a function in its own goroutine and exposes a completion
// future. The zero value is not usable, create with New.
type Runner struct {
	name    string
	done    chan struct{}
	started atomic.Bool
}

// New creates a Runner with a name used by callers for logging.
func New(name string) *Runner {
	return &Runner{
		name: name,
		done: make(chan struct{}),
	}
}

// Name returns the runner's name.
func (r *Runner) Name() string {
	return r.name
}

// Run starts fn in a new goroutine. The completion future is resolved when
// fn returns. Starting twice is a caller bug and reports false.
func (r *Runner) Run(fn func()) bool {
	if !r.started.CAS(false, true) {
		return false
	}
	go func() {
		defer close(r.done)
		fn()
	}()
	return true
}

// Done returns a channel closed when the goroutine has finished.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Join waits for the goroutine to finish. A non-positive timeout waits
// indefinitely. It reports whether completion was observed in time; on
// timeout the goroutine keeps running, there is no hard cancellation.
func (r *Runner) Join(timeout time.Duration) bool {
	if !r.started.Load() {
		return false
	}
	if timeout <= 0 {
		<-r.done
		return true
	}
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
