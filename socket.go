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

// Socket carries the address-family half of a socket variant: the
// protocol family, the bound unix path if any, and the generic socket
// option surface. TCPSocket and UDPSocket embed it next to their I/O
// half.
type Socket struct {
	sockfd   int
	family   Family
	unixPath string
}

func newSocket(fd int, f Family) Socket {
	return Socket{sockfd: fd, family: f}
}

// Family returns the socket's protocol family.
func (s *Socket) Family() Family {
	return s.family
}

// UnixPath returns the bound or inherited unix domain path, empty for
// inet sockets.
func (s *Socket) UnixPath() string {
	return s.unixPath
}

// Bind binds the socket to ip:port. An empty ip binds the family's
// wildcard address.
func (s *Socket) Bind(ip string, port int) error {
	if s.family == UnixLocal {
		return errors.New("Bind on a unix domain socket, use BindUnix")
	}
	sa, err := netutil.IPSockaddr(ip, port, s.family == IPv6)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.sockfd, sa); err != nil {
		return errors.Wrapf(os.NewSyscallError("bind", err), "%s:%d", ip, port)
	}
	return nil
}

// BindUnix binds the socket to a filesystem path. With remove set a stale
// path is unlinked first.
func (s *Socket) BindUnix(path string, remove bool) error {
	if s.family != UnixLocal {
		return errors.New("BindUnix on an inet socket")
	}
	if remove {
		if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
			return errors.Wrapf(os.NewSyscallError("unlink", err), "%s", path)
		}
	}
	sa, err := netutil.UnixSockaddr(path)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.sockfd, sa); err != nil {
		return errors.Wrapf(os.NewSyscallError("bind", err), "%s", path)
	}
	s.unixPath = path
	return nil
}

func (s *Socket) setBool(level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(s.sockfd, level, opt, v))
}

func (s *Socket) getBool(level, opt int) (bool, error) {
	v, err := unix.GetsockoptInt(s.sockfd, level, opt)
	if err != nil {
		return false, os.NewSyscallError("getsockopt", err)
	}
	return v != 0, nil
}

func (s *Socket) setInt(level, opt, v int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(s.sockfd, level, opt, v))
}

func (s *Socket) getInt(level, opt int) (int, error) {
	v, err := unix.GetsockoptInt(s.sockfd, level, opt)
	if err != nil {
		return 0, os.NewSyscallError("getsockopt", err)
	}
	return v, nil
}

// SetReuseAddr sets SO_REUSEADDR so a restarted listener can bind without
// waiting out TIME_WAIT.
func (s *Socket) SetReuseAddr(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEADDR, on)
}

// ReuseAddr returns SO_REUSEADDR.
func (s *Socket) ReuseAddr() (bool, error) {
	return s.getBool(unix.SOL_SOCKET, unix.SO_REUSEADDR)
}

// SetReusePort sets SO_REUSEPORT.
func (s *Socket) SetReusePort(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEPORT, on)
}

// ReusePort returns SO_REUSEPORT.
func (s *Socket) ReusePort() (bool, error) {
	return s.getBool(unix.SOL_SOCKET, unix.SO_REUSEPORT)
}

// SetRcvBuf requests a kernel receive buffer size. Linux doubles the
// requested value to leave room for bookkeeping, RcvBuf may report either
// the requested value or its double.
func (s *Socket) SetRcvBuf(size int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}

// RcvBuf returns the kernel receive buffer size.
func (s *Socket) RcvBuf() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_RCVBUF)
}

// SetSndBuf requests a kernel send buffer size, doubled on Linux like
// SetRcvBuf.
func (s *Socket) SetSndBuf(size int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_SNDBUF, size)
}

// SndBuf returns the kernel send buffer size.
func (s *Socket) SndBuf() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_SNDBUF)
}

// SetRcvLowat sets the receive low water mark.
func (s *Socket) SetRcvLowat(size int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_RCVLOWAT, size)
}

// RcvLowat returns the receive low water mark.
func (s *Socket) RcvLowat() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_RCVLOWAT)
}

// SetSndLowat sets the send low water mark. Linux does not allow changing
// this option, the call fails there with ENOPROTOOPT.
func (s *Socket) SetSndLowat(size int) error {
	return s.setInt(unix.SOL_SOCKET, unix.SO_SNDLOWAT, size)
}

// SndLowat returns the send low water mark.
func (s *Socket) SndLowat() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_SNDLOWAT)
}

// SoError reads and clears the pending socket error.
func (s *Socket) SoError() (int, error) {
	return s.getInt(unix.SOL_SOCKET, unix.SO_ERROR)
}

// sockname returns the locally bound address of the fd.
func (s *Socket) sockname() (string, int, Family, error) {
	sa, err := unix.Getsockname(s.sockfd)
	if err != nil {
		return "", 0, s.family, os.NewSyscallError("getsockname", err)
	}
	return s.nameOf(sa)
}

// peername returns the peer address of the fd.
func (s *Socket) peername() (string, int, Family, error) {
	sa, err := unix.Getpeername(s.sockfd)
	if err != nil {
		return "", 0, s.family, os.NewSyscallError("getpeername", err)
	}
	return s.nameOf(sa)
}

func (s *Socket) nameOf(sa unix.Sockaddr) (string, int, Family, error) {
	if netutil.IsUnix(sa) {
		// The kernel reports an empty name for unbound unix endpoints,
		// fall back to the path retained at bind/accept time.
		name, _, err := netutil.SockaddrIPPort(sa)
		if err != nil {
			return "", 0, s.family, err
		}
		if name == "" {
			name = s.unixPath
		}
		return name, 0, UnixLocal, nil
	}
	ip, port, err := netutil.SockaddrIPPort(sa)
	if err != nil {
		return "", 0, s.family, err
	}
	f := IPv4
	if netutil.IsIPv6(sa) {
		f = IPv6
	}
	return ip, port, f, nil
}
