// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"net"
	"strconv"

	goreuseport "github.com/kavu/go_reuseport"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/revent-io/revent/internal/runner"
	"github.com/revent-io/revent/log"
)

// acceptor hosts listening sockets: one goroutine running one event loop.
// Accepted connections are handed to a worker picked by the dispatch
// policy, the least loaded one by default.
type acceptor struct {
	loop  *EventLoop
	socks []*TCPSocket
	run   *runner.Runner
	data  *sharedData

	// reusePort makes inet listeners bind with SO_REUSEPORT so several
	// server processes can share the port.
	reusePort bool
}

func newAcceptor(data *sharedData, reusePort bool) (*acceptor, error) {
	a := &acceptor{
		run:       runner.New("acceptor"),
		data:      data,
		reusePort: reusePort,
	}
	loop, err := NewEventLoop(data, a)
	if err != nil {
		return nil, err
	}
	a.loop = loop
	return a, nil
}

// listen creates a listening socket on ip:port. Must be called before the
// acceptor starts; binding problems surface here, not in the loop.
func (a *acceptor) listen(port int, f Family, ip string) error {
	if f == UnixLocal {
		return errors.New("listen with inet family expected, use listenUnix")
	}
	if a.reusePort {
		return a.listenReusePort(port, f, ip)
	}
	sock, err := NewTCPSocket(f)
	if err != nil {
		return err
	}
	if err := sock.SetReuseAddr(true); err != nil {
		sock.Close()
		return err
	}
	if err := sock.Bind(ip, port); err != nil {
		sock.Close()
		return err
	}
	if err := sock.Listen(0); err != nil {
		sock.Close()
		return err
	}
	a.socks = append(a.socks, sock)
	if ip == "" {
		ip = "*"
	}
	log.Infof("listening socket %d working in %s %d", sock.FD(), ip, port)
	return nil
}

// listenReusePort builds the listening socket through go_reuseport and
// adopts its descriptor.
func (a *acceptor) listenReusePort(port int, f Family, ip string) error {
	proto := "tcp4"
	if f == IPv6 {
		proto = "tcp6"
	}
	ln, err := goreuseport.NewReusablePortListener(proto, net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrapf(err, "reuseport listen %s:%d", ip, port)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return errors.New("reuseport listener is not TCP")
	}
	file, err := tl.File()
	if err != nil {
		ln.Close()
		return errors.Wrap(err, "reuseport listener file")
	}
	// Own the descriptor independently of the *os.File and the listener.
	fd, err := unix.Dup(int(file.Fd()))
	file.Close()
	ln.Close()
	if err != nil {
		return errors.Wrap(err, "dup reuseport fd")
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "setnonblock reuseport fd")
	}
	sock := newTCPSocket(fd, f)
	a.socks = append(a.socks, sock)
	log.Infof("listening socket %d working in %s %d with reuseport", sock.FD(), ip, port)
	return nil
}

// listenUnix creates a unix domain listening socket on path, optionally
// unlinking a stale one first.
func (a *acceptor) listenUnix(path string, remove bool) error {
	sock, err := NewTCPSocket(UnixLocal)
	if err != nil {
		return err
	}
	if err := sock.BindUnix(path, remove); err != nil {
		sock.Close()
		return err
	}
	if err := sock.Listen(0); err != nil {
		sock.Close()
		return err
	}
	a.socks = append(a.socks, sock)
	log.Infof("listening socket %d working in %s", sock.FD(), path)
	return nil
}

// onAcceptReadable batch-accepts from a ready listener and places each
// new connection on a worker, watching writable with the establishment
// handler. An accept failure is logged and the server keeps serving.
func onAcceptReadable(p Pollable) {
	ls := p.(*TCPSocket)
	d := ls.Loop().Data().(*sharedData)
	conns, err := ls.Accept(0)
	if err != nil {
		log.Errorf("accept error on listening socket %d: %v", ls.FD(), err)
	}
	for _, conn := range conns {
		log.Infof("listening socket %d accepted new socket %d", ls.FD(), conn.FD())
		target := d.pickLoop()
		if err := target.RegisterAndActivate(conn, EventWritable,
			connEstablishHandler(alwaysEstablished, d.onAccept), PriorityNormal); err != nil {
			log.Errorf("dispatch accepted socket %d: %v", conn.FD(), err)
			conn.Close()
		}
	}
}

func (a *acceptor) start() {
	a.run.Run(func() {
		log.Infof("acceptor starting")
		for _, sock := range a.socks {
			if err := a.loop.RegisterAndActivate(sock, EventReadable,
				onAcceptReadable, PriorityNormal); err != nil {
				log.Errorf("register listening socket %d: %v", sock.FD(), err)
			}
		}
		a.loop.LoopForever(-1)
		log.Infof("acceptor ending")
	})
}

func (a *acceptor) shutdown() {
	if !a.loop.StopLoopTimeout(reactorShutdownTimeout) {
		log.Warnf("acceptor shutdown wait timeout")
	}
}

func (a *acceptor) join() {
	a.run.Join(0)
	for _, sock := range a.socks {
		sock.Close()
	}
}
