// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package runner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/revent-io/revent/internal/runner"
)

func TestRunnerJoin(t *testing.T) {
	r := runner.New("worker")
	assert.Equal(t, "worker", r.Name())

	release := make(chan struct{})
	assert.True(t, r.Run(func() { <-release }))
	assert.False(t, r.Run(func() {}))

	assert.False(t, r.Join(10*time.Millisecond))
	close(release)
	assert.True(t, r.Join(time.Second))

	select {
	case <-r.Done():
	default:
		t.Fatal("done future not resolved")
	}
}

func TestRunnerJoinBeforeRun(t *testing.T) {
	r := runner.New("idle")
	assert.False(t, r.Join(time.Millisecond))
}
