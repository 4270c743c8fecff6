// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"math/rand"
	"syscall"

	"github.com/pkg/errors"
)

// TCPClient is the connecting counterpart of TCPServer: N worker
// goroutines hosting established connections plus K connector goroutines
// turning queued targets into connections.
type TCPClient struct {
	data       *sharedData
	workers    []*worker
	connectors []*connector
	opts       options
}

// NewTCPClient creates a client with workerCount I/O workers and
// connectorCount connectors.
func NewTCPClient(workerCount, connectorCount int, opts ...Option) (*TCPClient, error) {
	if workerCount <= 0 || connectorCount <= 0 {
		return nil, errors.Errorf("worker count %d and connector count %d must be positive",
			workerCount, connectorCount)
	}
	c := &TCPClient{}
	c.opts.setDefault()
	for _, o := range opts {
		o.f(&c.opts)
	}
	c.data = newSharedData(c.opts.externalData, c.opts.dispatch)
	for i := 0; i < workerCount; i++ {
		w, err := newWorker(c.data)
		if err != nil {
			return nil, err
		}
		c.workers = append(c.workers, w)
		c.data.loops = append(c.data.loops, w.loop)
	}
	for i := 0; i < connectorCount; i++ {
		conn, err := newConnector(c.data)
		if err != nil {
			return nil, err
		}
		c.connectors = append(c.connectors, conn)
	}
	return c, nil
}

// SetOnConnect sets the callback fired when a connection is established.
func (c *TCPClient) SetOnConnect(h ConnHandler) {
	c.data.onConnect = h
}

// SetOnReadComplete sets the callback fired after a readable dispatch
// drained into the connection's read buffer.
func (c *TCPClient) SetOnReadComplete(h ConnHandler) {
	c.data.onReadComplete = h
}

// SetOnWriteComplete sets the callback fired when the write buffer
// drained completely.
func (c *TCPClient) SetOnWriteComplete(h ConnHandler) {
	c.data.onWriteComplete = h
}

// SetOnClosed sets the callback fired when the peer closed or reset the
// connection.
func (c *TCPClient) SetOnClosed(h ConnHandler) {
	c.data.onClosed = h
}

// Add enqueues count connects to ip:port, spread evenly across the
// connectors with the remainder landing on a random one.
func (c *TCPClient) Add(ip string, port int, f Family, count int) {
	if count <= 0 {
		return
	}
	div := count / len(c.connectors)
	mod := count % len(c.connectors)
	for _, conn := range c.connectors {
		conn.add(ip, port, f, div)
	}
	if mod > 0 {
		c.connectors[rand.Intn(len(c.connectors))].add(ip, port, f, mod)
	}
}

// AddUnix enqueues count connects to a unix domain path.
func (c *TCPClient) AddUnix(path string, count int) {
	c.Add(path, 0, UnixLocal, count)
}

// ConnectFailures returns how many connects to ip:port failed so far,
// counting both immediate syscall failures and asynchronous SO_ERROR
// failures.
func (c *TCPClient) ConnectFailures(ip string, port int, f Family) int {
	k := hostTarget{ip: ip, port: port, family: f}
	total := 0
	for _, conn := range c.connectors {
		total += conn.failureCount(k)
	}
	return total
}

// Run ignores SIGPIPE process wide and starts all workers and connectors.
func (c *TCPClient) Run() {
	IgnoreSignal(syscall.SIGPIPE)
	for _, w := range c.workers {
		w.start()
	}
	for _, conn := range c.connectors {
		conn.start()
	}
}

// Shutdown stops the reactor: connectors first, then the workers, each
// with the configured shutdown timeout.
func (c *TCPClient) Shutdown() {
	for _, conn := range c.connectors {
		conn.shutdown()
	}
	for _, conn := range c.connectors {
		conn.join()
	}
	for _, w := range c.workers {
		w.shutdown()
	}
	for _, w := range c.workers {
		w.join()
	}
}
