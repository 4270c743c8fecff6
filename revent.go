// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package revent provides an event driven TCP/UDP networking core for
// building high concurrency servers and clients. User code registers
// socket interest on an event loop, receives callbacks on I/O readiness
// and pushes bytes in and out through owned byte buffers. On top of the
// per goroutine event loops sits a multi reactor composed of acceptor,
// connector and worker roles.
//
// The core assumes SIGPIPE is ignored process wide; TCPServer.Run and
// TCPClient.Run take care of it. Applications that want an orderly
// shutdown on SIGINT should park the main goroutine in WaitForSignal and
// then call Shutdown.
package revent

import "fmt"

// Family is a socket protocol family.
type Family int

// Supported address families.
const (
	IPv4 Family = iota
	IPv6
	UnixLocal
)

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case UnixLocal:
		return "unix"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Event identifies one direction of fd readiness.
type Event int

// Event bits. Register and activate take exactly one bit at a time.
const (
	EventReadable Event = 1 << 0
	EventWritable Event = 1 << 1
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventReadable:
		return "readable"
	case EventWritable:
		return "writable"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// EventMode is the trigger mode of a file descriptor.
//
// About edge trigger:
//  1. Readable and reading not complete from the kernel buffer: epoll and
//     kqueue both won't trigger again unless the peer sends more.
//  2. Writable and writing not filling the kernel buffer: epoll won't
//     trigger again, kqueue keeps triggering.
//
// Therefore handlers should drain with Stream.ReadAll / Stream.WriteAll.
type EventMode int

// Trigger modes. A single fd must use one mode across all its events.
const (
	LevelTriggered EventMode = iota
	EdgeTriggered
	OneShot
)

// String implements fmt.Stringer.
func (m EventMode) String() string {
	switch m {
	case LevelTriggered:
		return "level"
	case EdgeTriggered:
		return "edge"
	case OneShot:
		return "oneshot"
	default:
		return fmt.Sprintf("EventMode(%d)", int(m))
	}
}

// Priority orders handler dispatch within one poller wakeup, larger runs
// first. Ties break arbitrarily.
type Priority int

// Priorities.
const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

// Handler is an fd event callback. The argument is the object the event
// was registered with; reactor internal handlers assert it back to the
// concrete socket type.
type Handler func(p Pollable)

// Pollable is implemented by every I/O object an EventLoop can manage.
type Pollable interface {
	// FD returns the file descriptor.
	FD() int

	// Loop returns the event loop currently managing the object, nil if
	// none.
	Loop() *EventLoop

	// IsClosed reports whether the descriptor has been released.
	IsClosed() bool

	setLoop(l *EventLoop)
}
