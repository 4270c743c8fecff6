// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"github.com/revent-io/revent/internal/runner"
	"github.com/revent-io/revent/log"
	"github.com/revent-io/revent/metrics"
)

// worker hosts established connections: one goroutine running one event
// loop. Connections are handed to it by acceptors and connectors through
// the dispatch policy, min-loads by default.
type worker struct {
	loop *EventLoop
	run  *runner.Runner
}

func newWorker(data *sharedData) (*worker, error) {
	w := &worker{run: runner.New("worker")}
	loop, err := NewEventLoop(data, w)
	if err != nil {
		return nil, err
	}
	w.loop = loop
	return w, nil
}

func (w *worker) start() {
	w.run.Run(func() {
		log.Infof("worker starting")
		w.loop.LoopForever(-1)
		log.Infof("worker ending")
	})
}

func (w *worker) shutdown() {
	if !w.loop.StopLoopTimeout(reactorShutdownTimeout) {
		log.Warnf("worker shutdown wait timeout")
	}
}

func (w *worker) join() {
	w.run.Join(0)
}

// sharedDataOf fetches the reactor shared data from a connection's
// current loop.
func sharedDataOf(c *TCPSocket) *sharedData {
	return c.Loop().Data().(*sharedData)
}

// closeIfPeerGone finishes a connection whose peer is gone: user callback,
// clean from the loop, release the fd. It is a no-op when the condition
// does not hold or the connection is already closed.
func closeIfPeerGone(c *TCPSocket, d *sharedData, gone bool) {
	if !gone || c.IsClosed() {
		return
	}
	d.onClosed(c)
	c.Loop().Clean(c)
	c.Close()
	metrics.Add(metrics.ConnsClosed, 1)
}

// onReadable drains the connection into its read buffer and hands the
// bytes to the user. The buffer is cleared when the user consumed it all,
// compacted when the consumed prefix outgrew half the capacity.
func onReadable(p Pollable) {
	c := p.(*TCPSocket)
	d := sharedDataOf(c)
	if _, err := c.ReadAll(0); err != nil {
		log.Errorf("syscall read error for fd %d: %v", c.FD(), err)
	}
	d.onReadComplete(c)
	if c.RBuffer().Size() == 0 {
		c.RBuffer().Clear()
	} else if c.RBuffer().Capacity()/2 < c.RBuffer().Waste() {
		c.RBuffer().Compact()
	}
	closeIfPeerGone(c, d, c.EOF() || c.IsReset())
}

// onWritable drains the write buffer to the kernel. When it empties the
// writable event is deactivated and the user is notified.
func onWritable(p Pollable) {
	c := p.(*TCPSocket)
	d := sharedDataOf(c)
	if _, err := c.WriteAll(0); err != nil {
		log.Errorf("syscall write error for fd %d: %v", c.FD(), err)
	}
	if c.WBuffer().Size() == 0 {
		c.WBuffer().Clear()
		if err := c.Loop().Deactivate(c, EventWritable); err != nil {
			log.Warnf("deactivate writable for fd %d: %v", c.FD(), err)
		}
		d.onWriteComplete(c)
	} else if c.WBuffer().Capacity()/2 < c.WBuffer().Waste() {
		c.WBuffer().Compact()
	}
	closeIfPeerGone(c, d, c.EOP() || c.IsReset())
}

// establishChecker decides whether a connecting socket that turned
// writable is actually usable: always true on the accept side, SO_ERROR
// based on the connect side.
type establishChecker func(c *TCPSocket) bool

func alwaysEstablished(*TCPSocket) bool { return true }

// connEstablishHandler builds the handler run once when a connecting or
// accepted socket becomes writable for the first time. On success the
// user callback fires between registering the writable handler and
// activating the readable one: AsyncWrite from inside the callback must
// work before readable dispatch is live, the sequence cannot change.
func connEstablishHandler(checker establishChecker, user ConnHandler) Handler {
	return func(p Pollable) {
		c := p.(*TCPSocket)
		loop := c.Loop()
		if err := loop.RemoveAndDeactivate(c, EventWritable); err != nil {
			log.Warnf("unregister establish event for fd %d: %v", c.FD(), err)
		}
		if !checker(c) {
			return
		}
		if err := loop.Register(c, EventWritable, onWritable, PriorityNormal); err != nil {
			log.Errorf("register writable for fd %d: %v", c.FD(), err)
			return
		}
		user(c)
		if c.IsClosed() {
			// The user callback closed the connection already.
			return
		}
		if err := loop.RegisterAndActivate(c, EventReadable, onReadable, PriorityNormal); err != nil {
			log.Errorf("register readable for fd %d: %v", c.FD(), err)
			return
		}
		metrics.Add(metrics.ConnsEstablished, 1)
		log.Infof("connected socket %d initialized", c.FD())
	}
}
