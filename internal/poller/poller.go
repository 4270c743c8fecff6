// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package poller is a thin wrapper over the OS readiness mechanism, epoll
// on linux and kqueue on bsd flavors. It registers interest masks per file
// descriptor and reports ready events, with readable and writable always
// reported as separate entries so the caller can order them independently.
package poller

import "fmt"

// Event is an interest bitmask.
type Event int

// Interest bits.
const (
	Readable Event = 1 << 0
	Writable Event = 1 << 1
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case Readable:
		return "Readable"
	case Writable:
		return "Writable"
	case Readable | Writable:
		return "Readable|Writable"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Mode is the trigger mode of a file descriptor. The same fd must use the
// same mode across all its events, kqueue configures the mode per filter
// while epoll configures it per fd, the caller enforces uniformity.
type Mode int

// Trigger modes.
const (
	LevelTriggered Mode = iota
	EdgeTriggered
	OneShot
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case LevelTriggered:
		return "LevelTriggered"
	case EdgeTriggered:
		return "EdgeTriggered"
	case OneShot:
		return "OneShot"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Ready is one ready event. A file descriptor that is both readable and
// writable produces two Ready entries.
type Ready struct {
	FD    int
	Event Event
}

// Poller monitors file descriptors for readiness.
type Poller interface {
	// Add registers fd with the given interest mask and trigger mode.
	Add(fd int, mask Event, mode Mode) error

	// Mod replaces fd's interest mask. The mask must be non-empty.
	Mod(fd int, mask Event, mode Mode) error

	// Del removes fd from the poller.
	Del(fd int) error

	// Wait blocks up to timeoutMs milliseconds for events and fills ready.
	// A negative timeout waits indefinitely. It returns the number of
	// entries filled; an interrupted wait returns 0 without error.
	Wait(ready []Ready, timeoutMs int) (int, error)

	// Close releases the poller handle.
	Close() error
}
