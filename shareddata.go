// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import "math/rand"

// ConnHandler is a reactor user callback, invoked with the connection it
// concerns.
type ConnHandler func(c *TCPSocket)

func idleHandler(*TCPSocket) {}

// sharedData holds the five user callbacks, the user's external data and
// the worker loop list used by the dispatch policy. It is created before
// any reactor goroutine starts and outlives all of them; the callback
// fields are written once during setup and read without a lock
// afterwards.
type sharedData struct {
	onAccept        ConnHandler
	onConnect       ConnHandler
	onReadComplete  ConnHandler
	onWriteComplete ConnHandler
	onClosed        ConnHandler

	externalData any

	// loops of the worker goroutines, used for connection placement.
	loops []*EventLoop

	// dispatch selects between min-loads and random placement.
	dispatch DispatchPolicy
}

func newSharedData(externalData any, dispatch DispatchPolicy) *sharedData {
	return &sharedData{
		onAccept:        idleHandler,
		onConnect:       idleHandler,
		onReadComplete:  idleHandler,
		onWriteComplete: idleHandler,
		onClosed:        idleHandler,
		externalData:    externalData,
		dispatch:        dispatch,
	}
}

// pickLoop places a new connection according to the configured dispatch
// policy.
func (d *sharedData) pickLoop() *EventLoop {
	if d.dispatch == DispatchRandom {
		return d.randomLoop()
	}
	return d.minLoadsLoop()
}

// minLoadsLoop picks the worker loop with the fewest registered handler
// pairs. The loads are read without locking, a slightly stale value leads
// at worst to a suboptimal placement.
func (d *sharedData) minLoadsLoop() *EventLoop {
	var pick *EventLoop
	min := int(^uint(0) >> 1)
	for _, l := range d.loops {
		if loads := l.Loads(); loads < min {
			pick, min = l, loads
		}
	}
	return pick
}

// randomLoop picks a worker loop uniformly at random.
func (d *sharedData) randomLoop() *EventLoop {
	return d.loops[rand.Intn(len(d.loops))]
}
