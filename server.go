// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"syscall"

	"github.com/pkg/errors"
)

// TCPServer is a multi reactor TCP server: N worker goroutines hosting
// established connections plus one or more acceptor goroutines hosting
// the listeners.
//
// Usage: create, set callbacks, Listen the ports, Run, and eventually
// Shutdown. Callbacks must be set before Run and not changed afterwards.
type TCPServer struct {
	data      *sharedData
	workers   []*worker
	acceptors []*acceptor
	opts      options
}

// NewTCPServer creates a server with workerCount I/O workers.
func NewTCPServer(workerCount int, opts ...Option) (*TCPServer, error) {
	if workerCount <= 0 {
		return nil, errors.Errorf("worker count %d must be positive", workerCount)
	}
	s := &TCPServer{}
	s.opts.setDefault()
	for _, o := range opts {
		o.f(&s.opts)
	}
	s.data = newSharedData(s.opts.externalData, s.opts.dispatch)
	for i := 0; i < workerCount; i++ {
		w, err := newWorker(s.data)
		if err != nil {
			return nil, err
		}
		s.workers = append(s.workers, w)
		s.data.loops = append(s.data.loops, w.loop)
	}
	return s, nil
}

// SetOnAccept sets the callback fired when a connection is accepted.
func (s *TCPServer) SetOnAccept(h ConnHandler) {
	s.data.onAccept = h
}

// SetOnReadComplete sets the callback fired after a readable dispatch
// drained into the connection's read buffer.
func (s *TCPServer) SetOnReadComplete(h ConnHandler) {
	s.data.onReadComplete = h
}

// SetOnWriteComplete sets the callback fired when the write buffer
// drained completely.
func (s *TCPServer) SetOnWriteComplete(h ConnHandler) {
	s.data.onWriteComplete = h
}

// SetOnClosed sets the callback fired when the peer closed or reset the
// connection.
func (s *TCPServer) SetOnClosed(h ConnHandler) {
	s.data.onClosed = h
}

func (s *TCPServer) nextAcceptor() (*acceptor, error) {
	if s.opts.singleAcceptor && len(s.acceptors) > 0 {
		return s.acceptors[len(s.acceptors)-1], nil
	}
	a, err := newAcceptor(s.data, s.opts.reusePort)
	if err != nil {
		return nil, err
	}
	s.acceptors = append(s.acceptors, a)
	return a, nil
}

// Listen adds a listener on ip:port. An empty ip binds the wildcard
// address. Call before Run; bind and listen problems are returned here.
func (s *TCPServer) Listen(port int, f Family, ip string) error {
	a, err := s.nextAcceptor()
	if err != nil {
		return err
	}
	return a.listen(port, f, ip)
}

// ListenUnix adds a unix domain listener on path, optionally removing a
// stale socket file first.
func (s *TCPServer) ListenUnix(path string, remove bool) error {
	a, err := s.nextAcceptor()
	if err != nil {
		return err
	}
	return a.listenUnix(path, remove)
}

// Run ignores SIGPIPE process wide and starts all workers and acceptors.
// It returns immediately, the reactor runs on its own goroutines.
func (s *TCPServer) Run() {
	IgnoreSignal(syscall.SIGPIPE)
	for _, w := range s.workers {
		w.start()
	}
	for _, a := range s.acceptors {
		a.start()
	}
}

// Shutdown stops the reactor: acceptors first so no new connection
// arrives mid teardown, then the workers. Each loop gets the configured
// shutdown timeout; a loop that misses it is logged and joined anyway.
func (s *TCPServer) Shutdown() {
	for _, a := range s.acceptors {
		a.shutdown()
	}
	for _, a := range s.acceptors {
		a.join()
	}
	for _, w := range s.workers {
		w.shutdown()
	}
	for _, w := range s.workers {
		w.join()
	}
}
