// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/revent-io/revent/internal/netutil"
)

func sysFamily(f Family) (int, error) {
	switch f {
	case IPv4:
		return unix.AF_INET, nil
	case IPv6:
		return unix.AF_INET6, nil
	case UnixLocal:
		return unix.AF_UNIX, nil
	default:
		return 0, errors.Errorf("unknown family %d", f)
	}
}

// NewTCPSocket creates a non-blocking stream socket of the given family.
func NewTCPSocket(f Family) (*TCPSocket, error) {
	domain, err := sysFamily(f)
	if err != nil {
		return nil, err
	}
	fd, err := netutil.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	return newTCPSocket(fd, f), nil
}

// NewUDPSocket creates a non-blocking datagram socket of the given family
// with buffers preallocated to the configured datagram size.
func NewUDPSocket(f Family) (*UDPSocket, error) {
	domain, err := sysFamily(f)
	if err != nil {
		return nil, err
	}
	fd, err := netutil.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	return newUDPSocket(fd, f), nil
}

// NewPipe creates a non-blocking pipe and returns its read and write end
// streams, in that order.
func NewPipe() (*Stream, *Stream, error) {
	p, err := netutil.Pipe()
	if err != nil {
		return nil, nil, err
	}
	rd := &Stream{IO: newIO(p[0])}
	wr := &Stream{IO: newIO(p[1])}
	return rd, wr, nil
}

// NewFIFO creates (if needed) a named pipe at path and returns its read
// and write end streams, in that order. The read end is opened first so
// the non-blocking write open does not fail with ENXIO.
func NewFIFO(path string) (*Stream, *Stream, error) {
	if err := unix.Mkfifo(path, 0o666); err != nil && err != unix.EEXIST {
		return nil, nil, errors.Wrapf(os.NewSyscallError("mkfifo", err), "%s", path)
	}
	rfd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(os.NewSyscallError("open", err), "%s", path)
	}
	wfd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(rfd)
		return nil, nil, errors.Wrapf(os.NewSyscallError("open", err), "%s", path)
	}
	rd := &Stream{IO: newIO(rfd)}
	wr := &Stream{IO: newIO(wfd)}
	return rd, wr, nil
}
