// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/revent-io/revent/internal/poller"
	"github.com/revent-io/revent/internal/safejob"
	"github.com/revent-io/revent/log"
	"github.com/revent-io/revent/metrics"
)

type fdEvent struct {
	fd int
	ev Event
}

type handlerEntry struct {
	prio Priority
	p    Pollable
	fn   Handler
}

// EventLoop owns one poller and dispatches readiness events to registered
// handlers in descending priority order. Exactly one goroutine runs the
// loop; every other method is safe to call from any goroutine.
//
// The loop's mutex is released before handlers run, so handlers may
// freely re-enter Register, Activate and the rest on this loop or on
// other loops.
type EventLoop struct {
	mu       sync.Mutex
	poller   poller.Poller
	events   map[int]Event
	modes    map[int]EventMode
	handlers map[fdEvent]handlerEntry
	loads    atomic.Int32
	stop     atomic.Bool
	stopped  chan struct{}
	stopJob  safejob.ExclusiveUnblockJob
	ready    []poller.Ready

	data  any
	owner any
}

// NewEventLoop creates an event loop. data is reachable from handlers via
// Data (the reactor stores its shared callbacks there), owner via Owner
// (the reactor role hosting the loop).
func NewEventLoop(data, owner any) (*EventLoop, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	return &EventLoop{
		poller:   p,
		events:   make(map[int]Event),
		modes:    make(map[int]EventMode),
		handlers: make(map[fdEvent]handlerEntry),
		stopped:  make(chan struct{}),
		// Every fd can report readable and writable separately.
		ready: make([]poller.Ready, 2*eventNumber),
		data:  data,
		owner: owner,
	}, nil
}

// Data returns the external data attached at creation.
func (l *EventLoop) Data() any {
	return l.data
}

// Owner returns the owner attached at creation.
func (l *EventLoop) Owner() any {
	return l.owner
}

// Loads returns the number of registered (fd, event) pairs. It is read
// without the loop lock: the reactor's dispatch heuristic tolerates
// slightly stale values.
func (l *EventLoop) Loads() int {
	return int(l.loads.Load())
}

func validEvent(ev Event) error {
	if ev != EventReadable && ev != EventWritable {
		return errors.Errorf("event must be exactly readable or writable, got %d", int(ev))
	}
	return nil
}

func pollerEvent(ev Event) poller.Event {
	var out poller.Event
	if ev&EventReadable != 0 {
		out |= poller.Readable
	}
	if ev&EventWritable != 0 {
		out |= poller.Writable
	}
	return out
}

func pollerMode(m EventMode) poller.Mode {
	switch m {
	case EdgeTriggered:
		return poller.EdgeTriggered
	case OneShot:
		return poller.OneShot
	default:
		return poller.LevelTriggered
	}
}

func loopEvent(ev poller.Event) Event {
	var out Event
	if ev&poller.Readable != 0 {
		out |= EventReadable
	}
	if ev&poller.Writable != 0 {
		out |= EventWritable
	}
	return out
}

// SetMode sets the trigger mode for the fd. It must precede the first
// Activate of the fd; the default is level triggered. One fd keeps one
// mode across all its events.
func (l *EventLoop) SetMode(p Pollable, m EventMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modes[p.FD()] = m
}

// Register records a handler for (fd, event) without touching the poller.
func (l *EventLoop) Register(p Pollable, ev Event, h Handler, prio Priority) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registerLocked(p, ev, h, prio)
}

func (l *EventLoop) registerLocked(p Pollable, ev Event, h Handler, prio Priority) error {
	key := fdEvent{p.FD(), ev}
	if _, ok := l.handlers[key]; ok {
		return errors.Errorf("fd %d %s event already registered", p.FD(), ev)
	}
	p.setLoop(l)
	l.handlers[key] = handlerEntry{prio: prio, p: p, fn: h}
	l.loads.Inc()
	if _, ok := l.modes[p.FD()]; !ok {
		l.modes[p.FD()] = LevelTriggered
	}
	return nil
}

// Activate adds poller interest for (fd, event). The pair must have been
// registered before.
func (l *EventLoop) Activate(p Pollable, ev Event) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activateLocked(p, ev)
}

func (l *EventLoop) activateLocked(p Pollable, ev Event) error {
	fd := p.FD()
	if _, ok := l.handlers[fdEvent{fd, ev}]; !ok {
		return errors.Errorf("activate fd %d %s event before register", fd, ev)
	}
	mask := l.events[fd]
	if mask&ev != 0 {
		return errors.Errorf("fd %d %s event already activated", fd, ev)
	}
	newMask := mask | ev
	mode := pollerMode(l.modes[fd])
	var err error
	if mask == 0 {
		err = l.poller.Add(fd, pollerEvent(newMask), mode)
	} else {
		err = l.poller.Mod(fd, pollerEvent(newMask), mode)
	}
	if err != nil {
		return err
	}
	l.events[fd] = newMask
	return nil
}

// RegisterAndActivate is Register followed by Activate, atomic under the
// loop's lock.
func (l *EventLoop) RegisterAndActivate(p Pollable, ev Event, h Handler, prio Priority) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.registerLocked(p, ev, h, prio); err != nil {
		return err
	}
	return l.activateLocked(p, ev)
}

// Remove drops the handler for (fd, event) without touching the poller.
func (l *EventLoop) Remove(p Pollable, ev Event) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(p, ev)
}

func (l *EventLoop) removeLocked(p Pollable, ev Event) error {
	key := fdEvent{p.FD(), ev}
	if _, ok := l.handlers[key]; !ok {
		return errors.Errorf("remove nonexistent fd %d %s event", p.FD(), ev)
	}
	delete(l.handlers, key)
	l.loads.Dec()
	return nil
}

// Deactivate removes poller interest for (fd, event) but keeps the
// handler registered.
func (l *EventLoop) Deactivate(p Pollable, ev Event) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deactivateLocked(p, ev)
}

func (l *EventLoop) deactivateLocked(p Pollable, ev Event) error {
	fd := p.FD()
	mask := l.events[fd]
	if mask&ev == 0 {
		return errors.Errorf("deactivate nonexistent fd %d %s event", fd, ev)
	}
	newMask := mask &^ ev
	var err error
	if newMask == 0 {
		err = l.poller.Del(fd)
	} else {
		err = l.poller.Mod(fd, pollerEvent(newMask), pollerMode(l.modes[fd]))
	}
	if err != nil {
		return err
	}
	if newMask == 0 {
		delete(l.events, fd)
	} else {
		l.events[fd] = newMask
	}
	return nil
}

// Activated reports whether (fd, event) currently has poller interest.
func (l *EventLoop) Activated(p Pollable, ev Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[p.FD()]&ev != 0
}

// RemoveAndDeactivate is Deactivate followed by Remove, atomic under the
// loop's lock.
func (l *EventLoop) RemoveAndDeactivate(p Pollable, ev Event) error {
	if err := validEvent(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.deactivateLocked(p, ev); err != nil {
		return err
	}
	return l.removeLocked(p, ev)
}

// Clean removes and deactivates all events of the fd, clears its trigger
// mode and detaches it from the loop. Poller failures are logged and
// skipped so a half-torn-down fd still leaves the maps.
func (l *EventLoop) Clean(p Pollable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fd := p.FD()
	for _, ev := range [2]Event{EventReadable, EventWritable} {
		if l.events[fd]&ev != 0 {
			if err := l.deactivateLocked(p, ev); err != nil {
				log.Warnf("clean deactivate fd %d %s event: %v", fd, ev, err)
				// Keep the maps consistent even when the poller refused.
				if mask := l.events[fd] &^ ev; mask == 0 {
					delete(l.events, fd)
				} else {
					l.events[fd] = mask
				}
			}
		}
		if _, ok := l.handlers[fdEvent{fd, ev}]; ok {
			delete(l.handlers, fdEvent{fd, ev})
			l.loads.Dec()
		}
	}
	delete(l.modes, fd)
	p.setLoop(nil)
}

type dispatchEntry struct {
	prio Priority
	p    Pollable
	fn   Handler
	fd   int
	ev   Event
}

// LoopOnce waits up to timeoutMs milliseconds for events and dispatches
// them. A negative timeout waits indefinitely. Stale events, whose pair
// is no longer registered or activated by the time the loop looks, are
// dropped with a warning.
func (l *EventLoop) LoopOnce(timeoutMs int) error {
	n, err := l.poller.Wait(l.ready, timeoutMs)
	if err != nil {
		return err
	}
	metrics.Add(metrics.LoopWakeups, 1)
	if n == 0 {
		return nil
	}

	l.mu.Lock()
	entries := make([]dispatchEntry, 0, n)
	for i := 0; i < n; i++ {
		r := l.ready[i]
		ev := loopEvent(r.Event)
		e, ok := l.handlers[fdEvent{r.FD, ev}]
		if !ok {
			log.Warnf("fd %d %s event ready but callback data not found", r.FD, ev)
			metrics.Add(metrics.LoopStaleEvents, 1)
			continue
		}
		if l.events[r.FD]&ev == 0 {
			log.Warnf("fd %d %s event ready but not activated", r.FD, ev)
			metrics.Add(metrics.LoopStaleEvents, 1)
			continue
		}
		entries = append(entries, dispatchEntry{prio: e.prio, p: e.p, fn: e.fn, fd: r.FD, ev: ev})
	}
	l.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].prio > entries[j].prio
	})
	for i := range entries {
		l.invoke(&entries[i])
	}
	return nil
}

// invoke runs one handler outside the loop lock, catching panics at the
// dispatch boundary so one connection cannot take the loop down.
func (l *EventLoop) invoke(e *dispatchEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("handler panic for fd %d %s event: %v", e.fd, e.ev, r)
			metrics.Add(metrics.LoopHandlerErrors, 1)
		}
	}()
	metrics.Add(metrics.LoopEvents, 1)
	e.fn(e.p)
}

// LoopForever repeats LoopOnce until the loop is stopped. A wait error
// ends the loop, handler errors do not.
func (l *EventLoop) LoopForever(timeoutMs int) {
	l.resetStop()
	for !l.stop.Load() {
		if err := l.LoopOnce(timeoutMs); err != nil {
			if l.stop.Load() {
				return
			}
			log.Errorf("event loop wait: %v", err)
			return
		}
	}
}

func (l *EventLoop) resetStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop.Load() {
		l.stop.Store(false)
		l.stopped = make(chan struct{})
	}
}

func (l *EventLoop) signalStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stop.Load() {
		l.stop.Store(true)
		close(l.stopped)
	}
}

// StopLoop stops the loop cooperatively and waits indefinitely for the
// loop goroutine to observe the stop.
func (l *EventLoop) StopLoop() {
	l.stopLoop(-1)
}

// StopLoopTimeout stops the loop cooperatively, waiting up to timeout for
// the stop to be observed. It reports whether it was.
func (l *EventLoop) StopLoopTimeout(timeout time.Duration) bool {
	return l.stopLoop(timeout)
}

// stopLoop wakes a parked loop through a pipe write end registered for
// the writable event at the lowest priority. The write end of a fresh
// pipe is always writable, so the next poller wait returns immediately,
// the handler marks the loop stopped and unregisters itself. Waking by
// writable readiness works the same for level and edge triggered
// back-ends; do not try to cancel the wait by signal or by closing the
// poller fd.
func (l *EventLoop) stopLoop(timeout time.Duration) bool {
	if l.stop.Load() {
		return true
	}
	// The stop pipe is registered at most once per loop run: the first
	// caller enters the job and plants the pipe, everyone else just waits
	// for the stop to be observed. The handler leaves the job so the loop
	// can be stopped again after a restart.
	if l.stopJob.Begin() {
		rd, wr, err := NewPipe()
		if err != nil {
			log.Errorf("stop loop pipe: %v", err)
			l.stopJob.End()
			return false
		}
		handler := func(p Pollable) {
			loop := p.Loop()
			if err := loop.RemoveAndDeactivate(p, EventWritable); err != nil {
				log.Warnf("stop loop unregister: %v", err)
			}
			wr.Close()
			rd.Close()
			loop.signalStop()
			loop.stopJob.End()
		}
		metrics.Add(metrics.LoopStops, 1)
		if err := l.RegisterAndActivate(wr, EventWritable, handler, PriorityLowest); err != nil {
			log.Errorf("stop loop register: %v", err)
			wr.Close()
			rd.Close()
			l.stopJob.End()
			return false
		}
	}

	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if timeout < 0 {
		<-stopped
		return true
	}
	select {
	case <-stopped:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases the poller handle. Call only after the loop goroutine
// has returned.
func (l *EventLoop) Close() error {
	return l.poller.Close()
}
