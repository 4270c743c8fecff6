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
	"github.com/revent-io/revent/metrics"
)

// UDPSocket is a datagram socket. Its read and write buffers are
// preallocated to the configured datagram size, one Recv or Send maps to
// one syscall and a datagram never transfers partially.
type UDPSocket struct {
	IO
	Socket
}

func newUDPSocket(fd int, f Family) *UDPSocket {
	s := &UDPSocket{
		IO:     newIO(fd),
		Socket: newSocket(fd, f),
	}
	// Preallocate both directions so Recv never grows mid-dispatch.
	s.rbuf.WritableSlice(udpBufferSize)
	s.wbuf.WritableSlice(udpBufferSize)
	return s
}

// Recv receives one datagram into the read buffer, replacing its previous
// content, and returns the sender address. A drained socket returns ok ==
// false without error.
func (s *UDPSocket) Recv() (ip string, port int, f Family, ok bool, err error) {
	s.rbuf.Clear()
	dst := s.rbuf.WritableSlice(udpBufferSize)
	for {
		n, sa, rerr := unix.Recvfrom(s.fd, dst, 0)
		metrics.Add(metrics.UDPRecvCalls, 1)
		switch rerr {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return "", 0, s.family, false, nil
		default:
			return "", 0, s.family, false,
				errors.Wrapf(os.NewSyscallError("recvfrom", rerr), "fd %d", s.fd)
		}
		s.rbuf.Commit(n)
		if netutil.IsUnix(sa) {
			path, _, perr := netutil.SockaddrIPPort(sa)
			return path, 0, UnixLocal, true, perr
		}
		addr, p, perr := netutil.SockaddrIPPort(sa)
		fam := IPv4
		if netutil.IsIPv6(sa) {
			fam = IPv6
		}
		return addr, p, fam, true, perr
	}
}

// Send sends the write buffer's content as one datagram to ip:port and
// consumes it. A full kernel buffer leaves the data in place with ok ==
// false.
func (s *UDPSocket) Send(ip string, port int) (ok bool, err error) {
	if s.family == UnixLocal {
		return false, errors.New("Send on a unix domain socket, use SendUnix")
	}
	sa, err := netutil.IPSockaddr(ip, port, s.family == IPv6)
	if err != nil {
		return false, err
	}
	return s.send(sa)
}

// SendUnix sends the write buffer's content as one datagram to a unix
// domain path.
func (s *UDPSocket) SendUnix(path string) (ok bool, err error) {
	if s.family != UnixLocal {
		return false, errors.New("SendUnix on an inet socket")
	}
	sa, err := netutil.UnixSockaddr(path)
	if err != nil {
		return false, err
	}
	return s.send(sa)
}

func (s *UDPSocket) send(sa unix.Sockaddr) (bool, error) {
	data := s.wbuf.Data()
	for {
		err := unix.Sendto(s.fd, data, 0, sa)
		metrics.Add(metrics.UDPSendCalls, 1)
		switch err {
		case nil:
			s.wbuf.Clear()
			return true, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return false, nil
		default:
			return false, errors.Wrapf(os.NewSyscallError("sendto", err), "fd %d", s.fd)
		}
	}
}

// Sockname returns the locally bound address.
func (s *UDPSocket) Sockname() (string, int, Family, error) {
	return s.sockname()
}

// SetBroadcast sets SO_BROADCAST.
func (s *UDPSocket) SetBroadcast(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_BROADCAST, on)
}

// Broadcast returns SO_BROADCAST.
func (s *UDPSocket) Broadcast() (bool, error) {
	return s.getBool(unix.SOL_SOCKET, unix.SO_BROADCAST)
}
