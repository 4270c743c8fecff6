// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"github.com/revent-io/revent/log"
	"github.com/revent-io/revent/metrics"
)

// AsyncWrite pushes the connection's write buffer out. It tries a direct
// non-blocking drain first; leftovers are handed to the worker loop by
// activating the writable event. Callable from any handler running on the
// connection's loop.
func AsyncWrite(c *TCPSocket) {
	d := sharedDataOf(c)
	metrics.Add(metrics.AsyncWriteCalls, 1)
	if _, err := c.WriteAll(0); err != nil {
		log.Errorf("syscall write error for fd %d: %v", c.FD(), err)
	}
	if c.WBuffer().Size() == 0 {
		d.onWriteComplete(c)
		return
	}
	if c.EOP() || c.IsReset() {
		closeIfPeerGone(c, d, true)
		return
	}
	loop := c.Loop()
	if !loop.Activated(c, EventWritable) {
		if err := loop.Activate(c, EventWritable); err != nil {
			log.Errorf("activate writable for fd %d: %v", c.FD(), err)
		}
	}
}

// SafelyClose removes the connection from its loop before releasing the
// fd, so no stale dispatch can reach a dead descriptor.
func SafelyClose(c *TCPSocket) {
	if loop := c.Loop(); loop != nil {
		loop.Clean(c)
	}
	c.Close()
	metrics.Add(metrics.ConnsClosed, 1)
}

// ExternalData returns the user data attached to the reactor the
// connection belongs to.
func ExternalData(c *TCPSocket) any {
	return sharedDataOf(c).externalData
}
