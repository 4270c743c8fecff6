// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	revent "github.com/revent-io/revent"
)

func newLoop(t *testing.T) *revent.EventLoop {
	t.Helper()
	loop, err := revent.NewEventLoop(nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })
	return loop
}

func newTestPipe(t *testing.T) (*revent.Stream, *revent.Stream) {
	t.Helper()
	rd, wr, err := revent.NewPipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		rd.Close()
		wr.Close()
	})
	return rd, wr
}

func TestRegistrationRoundTrip(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	assert.Equal(t, 0, loop.Loads())
	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(revent.Pollable) {}, revent.PriorityNormal))
	assert.Equal(t, 1, loop.Loads())
	assert.Equal(t, loop, rd.Loop())
	assert.True(t, loop.Activated(rd, revent.EventReadable))

	require.NoError(t, loop.RemoveAndDeactivate(rd, revent.EventReadable))
	assert.Equal(t, 0, loop.Loads())
	assert.False(t, loop.Activated(rd, revent.EventReadable))
}

func TestRegisterTwiceIsError(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	require.NoError(t, loop.Register(rd, revent.EventReadable,
		func(revent.Pollable) {}, revent.PriorityNormal))
	assert.Error(t, loop.Register(rd, revent.EventReadable,
		func(revent.Pollable) {}, revent.PriorityNormal))
}

func TestActivateBeforeRegisterIsError(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	assert.Error(t, loop.Activate(rd, revent.EventReadable))
	assert.Error(t, loop.Deactivate(rd, revent.EventReadable))
	assert.Error(t, loop.Remove(rd, revent.EventReadable))
}

func TestActivateTwiceIsError(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(revent.Pollable) {}, revent.PriorityNormal))
	assert.Error(t, loop.Activate(rd, revent.EventReadable))
}

func TestCombinedEventMaskRejected(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	err := loop.Register(rd, revent.EventReadable|revent.EventWritable,
		func(revent.Pollable) {}, revent.PriorityNormal)
	assert.Error(t, err)
}

func TestDispatchInvokesHandler(t *testing.T) {
	loop := newLoop(t)
	rd, wr := newTestPipe(t)

	got := make(chan string, 1)
	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(p revent.Pollable) {
			s := p.(*revent.Stream)
			_, err := s.ReadAll(0)
			require.NoError(t, err)
			got <- s.RBuffer().GetString(-1, true)
		}, revent.PriorityNormal))

	wr.WBuffer().AppendString("ping")
	_, err := wr.WriteAll(0)
	require.NoError(t, err)

	require.NoError(t, loop.LoopOnce(1000))
	select {
	case s := <-got:
		assert.Equal(t, "ping", s)
	default:
		t.Fatal("handler did not run")
	}
}

func TestPriorityOrdering(t *testing.T) {
	loop := newLoop(t)
	rdLo, wrLo := newTestPipe(t)
	rdHi, wrHi := newTestPipe(t)

	var order []string
	drain := func(p revent.Pollable, tag string) {
		s := p.(*revent.Stream)
		s.ReadAll(0)
		s.RBuffer().Clear()
		order = append(order, tag)
	}
	require.NoError(t, loop.RegisterAndActivate(rdLo, revent.EventReadable,
		func(p revent.Pollable) { drain(p, "low") }, revent.PriorityLow))
	require.NoError(t, loop.RegisterAndActivate(rdHi, revent.EventReadable,
		func(p revent.Pollable) { drain(p, "high") }, revent.PriorityHigh))

	// Make both ready before the wait so they surface in one wakeup.
	wrLo.WBuffer().AppendString("x")
	_, err := wrLo.WriteAll(0)
	require.NoError(t, err)
	wrHi.WBuffer().AppendString("x")
	_, err = wrHi.WriteAll(0)
	require.NoError(t, err)

	require.NoError(t, loop.LoopOnce(1000))
	require.Equal(t, []string{"high", "low"}, order)
}

func TestRemovedEventNotDispatched(t *testing.T) {
	loop := newLoop(t)
	rd, wr := newTestPipe(t)

	fired := false
	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(p revent.Pollable) { fired = true }, revent.PriorityNormal))
	require.NoError(t, loop.RemoveAndDeactivate(rd, revent.EventReadable))

	wr.WBuffer().AppendString("x")
	_, err := wr.WriteAll(0)
	require.NoError(t, err)

	require.NoError(t, loop.LoopOnce(100))
	assert.False(t, fired)
}

func TestHandlerPanicIsContained(t *testing.T) {
	loop := newLoop(t)
	rd, wr := newTestPipe(t)

	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(p revent.Pollable) {
			p.(*revent.Stream).ReadAll(0)
			p.(*revent.Stream).RBuffer().Clear()
			panic("user bug")
		}, revent.PriorityNormal))

	wr.WBuffer().AppendString("x")
	_, err := wr.WriteAll(0)
	require.NoError(t, err)

	// The panic is caught at the dispatch boundary.
	require.NoError(t, loop.LoopOnce(1000))
}

func TestStopWakesParkedLoop(t *testing.T) {
	loop := newLoop(t)

	done := make(chan struct{})
	go func() {
		loop.LoopForever(-1)
		close(done)
	}()
	// Give the loop a moment to park in wait.
	time.Sleep(50 * time.Millisecond)

	assert.True(t, loop.StopLoopTimeout(5*time.Second))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop goroutine did not return")
	}
}

func TestStopLoopIndefinite(t *testing.T) {
	loop := newLoop(t)

	done := make(chan struct{})
	go func() {
		loop.LoopForever(-1)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	loop.StopLoop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop goroutine did not return")
	}
}

func TestConcurrentStopLoop(t *testing.T) {
	loop := newLoop(t)

	done := make(chan struct{})
	go func() {
		loop.LoopForever(-1)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// Only the first caller plants the stop pipe, all of them observe
	// the stop.
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- loop.StopLoopTimeout(5 * time.Second)
		}()
	}
	for i := 0; i < 3; i++ {
		assert.True(t, <-results)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop goroutine did not return")
	}
}

func TestCleanDetaches(t *testing.T) {
	loop := newLoop(t)
	rd, _ := newTestPipe(t)

	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(revent.Pollable) {}, revent.PriorityNormal))
	require.Equal(t, 1, loop.Loads())

	loop.Clean(rd)
	assert.Equal(t, 0, loop.Loads())
	assert.Nil(t, rd.Loop())
	assert.False(t, loop.Activated(rd, revent.EventReadable))
}

func TestSetModeEdgeTriggered(t *testing.T) {
	loop := newLoop(t)
	rd, wr := newTestPipe(t)

	fires := 0
	loop.SetMode(rd, revent.EdgeTriggered)
	require.NoError(t, loop.RegisterAndActivate(rd, revent.EventReadable,
		func(p revent.Pollable) { fires++ }, revent.PriorityNormal))

	wr.WBuffer().AppendString("x")
	_, err := wr.WriteAll(0)
	require.NoError(t, err)

	require.NoError(t, loop.LoopOnce(500))
	require.Equal(t, 1, fires)

	// Handler did not drain; edge triggered readiness must not re-fire.
	require.NoError(t, loop.LoopOnce(100))
	assert.Equal(t, 1, fires)
}
