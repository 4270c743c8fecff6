// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux
// +build linux

package poller

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// New creates an epoll poller.
func New() (Poller, error) {
	// EPOLL_CLOEXEC for consistency with the Go runtime.
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epoll{fd: fd}, nil
}

type epoll struct {
	fd     int
	events []unix.EpollEvent
}

func sysEvents(mask Event, mode Mode) uint32 {
	var ev uint32
	if mask&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	switch mode {
	case EdgeTriggered:
		ev |= unix.EPOLLET
	case OneShot:
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

// Add registers fd with the given interest mask and trigger mode.
func (ep *epoll) Add(fd int, mask Event, mode Mode) error {
	ev := &unix.EpollEvent{Events: sysEvents(mask, mode), Fd: int32(fd)}
	if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return errors.Wrapf(os.NewSyscallError("epoll_ctl add", err), "fd %d", fd)
	}
	return nil
}

// Mod replaces fd's interest mask.
func (ep *epoll) Mod(fd int, mask Event, mode Mode) error {
	ev := &unix.EpollEvent{Events: sysEvents(mask, mode), Fd: int32(fd)}
	if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return errors.Wrapf(os.NewSyscallError("epoll_ctl mod", err), "fd %d", fd)
	}
	return nil
}

// Del removes fd from the poller.
func (ep *epoll) Del(fd int) error {
	if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errors.Wrapf(os.NewSyscallError("epoll_ctl del", err), "fd %d", fd)
	}
	return nil
}

// Wait blocks up to timeoutMs for events and fills ready with one entry
// per (fd, direction) pair.
func (ep *epoll) Wait(ready []Ready, timeoutMs int) (int, error) {
	// Each fd can contribute a readable and a writable entry, waiting on
	// half the capacity keeps the fill from overflowing ready.
	want := len(ready) / 2
	if want < 1 {
		want = 1
	}
	if len(ep.events) < want {
		ep.events = make([]unix.EpollEvent, want)
	}
	n, err := unix.EpollWait(ep.fd, ep.events[:want], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	filled := 0
	for i := 0; i < n; i++ {
		ev := ep.events[i]
		fd := int(ev.Fd)
		readable := ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0
		writable := ev.Events&unix.EPOLLOUT != 0
		if !readable && !writable {
			// Error or hangup with no direction bit: the fd will not
			// block either way, report both and let the dispatcher drop
			// whichever direction is not registered.
			readable, writable = true, true
		}
		if readable && filled < len(ready) {
			ready[filled] = Ready{FD: fd, Event: Readable}
			filled++
		}
		if writable && filled < len(ready) {
			ready[filled] = Ready{FD: fd, Event: Writable}
			filled++
		}
	}
	return filled, nil
}

// Close releases the epoll handle.
func (ep *epoll) Close() error {
	return os.NewSyscallError("close", unix.Close(ep.fd))
}
