// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"github.com/eapache/queue"

	"github.com/revent-io/revent/internal/locker"
	"github.com/revent-io/revent/internal/runner"
	"github.com/revent-io/revent/log"
	"github.com/revent-io/revent/metrics"
)

// hostTarget identifies a connect destination. Unix domain targets carry
// the path in ip with port 0.
type hostTarget struct {
	ip     string
	port   int
	family Family
}

// connector turns queued connect targets into connections: one goroutine
// running one event loop. Enqueuing wakes the loop through a self-pipe,
// keeping connect syscalls off the worker and acceptor goroutines.
type connector struct {
	loop *EventLoop
	run  *runner.Runner
	data *sharedData

	// rdp is registered for readable in the loop; add writes one byte to
	// wrp to wake it.
	rdp *Stream
	wrp *Stream

	// lk guards pending, order and failures. The sections are a few map
	// operations, a spinlock is enough.
	lk       *locker.Locker
	pending  map[hostTarget]int
	order    *queue.Queue
	failures map[hostTarget]int
}

func newConnector(data *sharedData) (*connector, error) {
	c := &connector{
		run:      runner.New("connector"),
		data:     data,
		lk:       locker.New(),
		pending:  make(map[hostTarget]int),
		order:    queue.New(),
		failures: make(map[hostTarget]int),
	}
	loop, err := NewEventLoop(data, c)
	if err != nil {
		return nil, err
	}
	c.loop = loop
	rdp, wrp, err := NewPipe()
	if err != nil {
		return nil, err
	}
	c.rdp, c.wrp = rdp, wrp
	return c, nil
}

// add enqueues n connects to the target and wakes the loop.
func (c *connector) add(ip string, port int, f Family, n int) {
	if n <= 0 {
		return
	}
	k := hostTarget{ip: ip, port: port, family: f}
	c.lk.Lock()
	if _, ok := c.pending[k]; !ok {
		c.order.Add(k)
	}
	c.pending[k] += n
	c.lk.Unlock()

	c.wrp.WBuffer().AppendString("0")
	if _, err := c.wrp.WriteAll(1); err != nil {
		log.Errorf("syscall write error for fd %d: %v", c.wrp.FD(), err)
	}
}

func (c *connector) recordFailure(k hostTarget) {
	c.lk.Lock()
	c.failures[k]++
	c.lk.Unlock()
	metrics.Add(metrics.ConnectFailures, 1)
}

// failureCount returns how many connects to the target failed, either in
// the connect syscall or in the SO_ERROR check.
func (c *connector) failureCount(k hostTarget) int {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.failures[k]
}

// onPipeReadable drains the wake bytes, swaps the pending targets out and
// starts a connect for each queued slot, dispatching the sockets that got
// in progress to workers picked by the dispatch policy.
func onPipeReadable(p Pollable) {
	s := p.(*Stream)
	c := s.Loop().Owner().(*connector)
	d := s.Loop().Data().(*sharedData)

	if _, err := s.ReadAll(1); err != nil {
		log.Errorf("syscall read error for fd %d: %v", s.FD(), err)
	}
	s.RBuffer().Clear()

	c.lk.Lock()
	pending := c.pending
	order := c.order
	c.pending = make(map[hostTarget]int)
	c.order = queue.New()
	c.lk.Unlock()

	for order.Length() > 0 {
		k := order.Remove().(hostTarget)
		for i := 0; i < pending[k]; i++ {
			c.connectOne(k, d)
		}
	}
}

func (c *connector) connectOne(k hostTarget, d *sharedData) {
	sock, err := NewTCPSocket(k.family)
	if err != nil {
		log.Errorf("create socket for %s: %v", k.ip, err)
		c.recordFailure(k)
		return
	}
	var ok bool
	if k.family == UnixLocal {
		ok, err = sock.ConnectUnix(k.ip)
	} else {
		ok, err = sock.Connect(k.ip, k.port)
	}
	if !ok {
		c.recordFailure(k)
		if k.family == UnixLocal {
			log.Warnf("connect %s failed: %v", k.ip, err)
		} else {
			log.Warnf("connect %s %d failed: %v", k.ip, k.port, err)
		}
		sock.Close()
		return
	}
	if err := d.pickLoop().RegisterAndActivate(sock, EventWritable,
		connEstablishHandler(c.checkEstablished, d.onConnect), PriorityNormal); err != nil {
		log.Errorf("dispatch connecting socket %d: %v", sock.FD(), err)
		c.recordFailure(k)
		sock.Close()
	}
}

// checkEstablished is the connect-side establishment checker: SO_ERROR
// zero means connected, anything else records a failure for the target
// and tears the socket down.
func (c *connector) checkEstablished(sock *TCPSocket) bool {
	if sock.CheckConnect() {
		return true
	}
	ip, port := sock.TargetURI()
	k := hostTarget{ip: ip, port: port, family: sock.Family()}
	c.recordFailure(k)
	sock.Loop().Clean(sock)
	sock.Close()
	if k.family == UnixLocal {
		log.Warnf("connect %s failed when checking writable", ip)
	} else {
		log.Warnf("connect %s %d failed when checking writable", ip, port)
	}
	return false
}

func (c *connector) start() {
	c.run.Run(func() {
		log.Infof("connector starting")
		if err := c.loop.RegisterAndActivate(c.rdp, EventReadable,
			onPipeReadable, PriorityNormal); err != nil {
			log.Errorf("register connector pipe: %v", err)
		}
		c.loop.LoopForever(-1)
		log.Infof("connector ending")
	})
}

func (c *connector) shutdown() {
	if !c.loop.StopLoopTimeout(reactorShutdownTimeout) {
		log.Warnf("connector shutdown wait timeout")
	}
}

func (c *connector) join() {
	c.run.Join(0)
	c.rdp.Close()
	c.wrp.Close()
}
