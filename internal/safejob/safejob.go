// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package safejob provides concurrency-safe job guards: run-once jobs for
// resource release and exclusive jobs that refuse concurrent entry.
package safejob

import (
	"go.uber.org/atomic"

	"github.com/revent-io/revent/internal/locker"
)

// OnceJob can only be entered once and is closed afterwards. It guards
// release paths that must not run twice, such as closing a file descriptor.
type OnceJob struct {
	closed atomic.Bool
}

// Begin reports whether the caller won the right to run the job. The first
// caller wins, every later call returns false.
func (j *OnceJob) Begin() bool {
	return j.closed.CAS(false, true)
}

// Close marks the job closed without running it.
func (j *OnceJob) Close() {
	j.closed.Store(true)
}

// Closed reports whether the job is closed.
func (j *OnceJob) Closed() bool {
	return j.closed.Load()
}

// ExclusiveUnblockJob executes a job exclusively. If the control is not
// acquired the caller returns immediately instead of blocking.
type ExclusiveUnblockJob struct {
	l      locker.Locker
	closed atomic.Bool
}

// Begin tries to enter the job. It returns false when another goroutine is
// inside or the job is closed.
func (j *ExclusiveUnblockJob) Begin() bool {
	if !j.l.TryLock() {
		return false
	}
	if j.closed.Load() {
		j.l.Unlock()
		return false
	}
	return true
}

// End leaves the job. Only call after a successful Begin.
func (j *ExclusiveUnblockJob) End() {
	j.l.Unlock()
}

// Close the job. After close the job can't be entered anymore.
func (j *ExclusiveUnblockJob) Close() {
	j.l.Lock()
	j.closed.Store(true)
	j.l.Unlock()
}

// Closed reports whether the job is closed.
func (j *ExclusiveUnblockJob) Closed() bool {
	return j.closed.Load()
}
