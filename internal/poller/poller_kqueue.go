// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build darwin || freebsd || dragonfly
// +build darwin freebsd dragonfly

package poller

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// New creates a kqueue poller.
func New() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(fd)
	return &kqueue{fd: fd}, nil
}

type kqueue struct {
	fd     int
	events []unix.Kevent_t
}

func modeFlags(mode Mode) uint16 {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	switch mode {
	case EdgeTriggered:
		flags |= unix.EV_CLEAR
	case OneShot:
		flags |= unix.EV_ONESHOT
	}
	return flags
}

func (kq *kqueue) change(changes []unix.Kevent_t) error {
	_, err := unix.Kevent(kq.fd, changes, nil, nil)
	return err
}

// apply sets the filters for fd to exactly mask: absent filters are
// deleted, present ones are (re)added with the mode flags.
func (kq *kqueue) apply(fd int, mask Event, mode Mode) error {
	var changes []unix.Kevent_t
	for _, f := range [2]struct {
		ev     Event
		filter int16
	}{
		{Readable, unix.EVFILT_READ},
		{Writable, unix.EVFILT_WRITE},
	} {
		kev := unix.Kevent_t{Ident: uint64(fd), Filter: f.filter}
		if mask&f.ev != 0 {
			kev.Flags = modeFlags(mode)
		} else {
			kev.Flags = unix.EV_DELETE
		}
		changes = append(changes, kev)
	}
	// Deleting an absent filter fails with ENOENT, apply one by one and
	// tolerate it.
	for i := range changes {
		if err := kq.change(changes[i : i+1]); err != nil && err != unix.ENOENT {
			return errors.Wrapf(os.NewSyscallError("kevent", err), "fd %d", fd)
		}
	}
	return nil
}

// Add registers fd with the given interest mask and trigger mode.
func (kq *kqueue) Add(fd int, mask Event, mode Mode) error {
	return kq.apply(fd, mask, mode)
}

// Mod replaces fd's interest mask.
func (kq *kqueue) Mod(fd int, mask Event, mode Mode) error {
	return kq.apply(fd, mask, mode)
}

// Del removes fd from the poller.
func (kq *kqueue) Del(fd int) error {
	return kq.apply(fd, 0, LevelTriggered)
}

// Wait blocks up to timeoutMs for events and fills ready. kqueue reports
// read and write filters separately by nature.
func (kq *kqueue) Wait(ready []Ready, timeoutMs int) (int, error) {
	if len(kq.events) < len(ready) {
		kq.events = make([]unix.Kevent_t, len(ready))
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(kq.fd, nil, kq.events[:len(ready)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent", err)
	}
	filled := 0
	for i := 0; i < n && filled < len(ready); i++ {
		ev := kq.events[i]
		switch ev.Filter {
		case unix.EVFILT_READ:
			ready[filled] = Ready{FD: int(ev.Ident), Event: Readable}
			filled++
		case unix.EVFILT_WRITE:
			ready[filled] = Ready{FD: int(ev.Ident), Event: Writable}
			filled++
		}
	}
	return filled, nil
}

// Close releases the kqueue handle.
func (kq *kqueue) Close() error {
	return os.NewSyscallError("close", unix.Close(kq.fd))
}
