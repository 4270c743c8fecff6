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

// ShutdownMode selects which direction Shutdown closes.
type ShutdownMode int

// Shutdown directions.
const (
	ShutdownRead ShutdownMode = iota
	ShutdownWrite
	ShutdownReadWrite
)

// TCPSocket is a connection oriented socket: the Stream I/O half plus the
// Socket family half, with listen/connect/accept on top.
type TCPSocket struct {
	Stream
	Socket

	// target of the last Connect/ConnectUnix, kept for introspection and
	// failure accounting. For unix targets the path lives in targetIP.
	targetIP   string
	targetPort int
}

func newTCPSocket(fd int, f Family) *TCPSocket {
	return &TCPSocket{
		Stream: newStream(fd),
		Socket: newSocket(fd, f),
	}
}

// Listen marks the socket as a listener. A non-positive backlog uses the
// system maximum.
func (s *TCPSocket) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return errors.Wrapf(os.NewSyscallError("listen", err), "fd %d", s.fd)
	}
	return nil
}

// Connect starts a non-blocking connect to ip:port. It reports true when
// the syscall succeeded immediately or returned EINPROGRESS; completion is
// observed later through the writable event and CheckConnect. Any other
// errno reports false with the cause.
func (s *TCPSocket) Connect(ip string, port int) (bool, error) {
	if s.family == UnixLocal {
		return false, errors.New("Connect on a unix domain socket, use ConnectUnix")
	}
	sa, err := netutil.IPSockaddr(ip, port, s.family == IPv6)
	if err != nil {
		return false, err
	}
	s.targetIP, s.targetPort = ip, port
	return s.connect(sa)
}

// ConnectUnix starts a non-blocking connect to a unix domain path.
func (s *TCPSocket) ConnectUnix(path string) (bool, error) {
	if s.family != UnixLocal {
		return false, errors.New("ConnectUnix on an inet socket")
	}
	sa, err := netutil.UnixSockaddr(path)
	if err != nil {
		return false, err
	}
	s.targetIP, s.targetPort = path, 0
	s.unixPath = path
	return s.connect(sa)
}

func (s *TCPSocket) connect(sa unix.Sockaddr) (bool, error) {
	for {
		err := unix.Connect(s.fd, sa)
		switch err {
		case nil, unix.EINPROGRESS:
			return true, nil
		case unix.EINTR:
			continue
		default:
			return false, errors.Wrapf(os.NewSyscallError("connect", err), "fd %d", s.fd)
		}
	}
}

// CheckConnect reads SO_ERROR to tell an established connection from an
// asynchronous connect failure. Valid once after the first writable event
// of a connecting socket; the read clears the pending error.
func (s *TCPSocket) CheckConnect() bool {
	soerr, err := s.SoError()
	return err == nil && soerr == 0
}

// TargetURI returns the connect target: (ip, port) for inet sockets,
// (path, 0) for unix sockets. Empty before Connect.
func (s *TCPSocket) TargetURI() (string, int) {
	return s.targetIP, s.targetPort
}

// Accept accepts up to batch pending connections, fewer when the backlog
// drains. batch <= 0 accepts until the backlog drains. Accepted sockets
// are non-blocking and inherit the listener's unix path.
func (s *TCPSocket) Accept(batch int) ([]*TCPSocket, error) {
	var conns []*TCPSocket
	for batch <= 0 || len(conns) < batch {
		fd, _, err := accept(s.fd)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return conns, nil
		default:
			return conns, errors.Wrapf(os.NewSyscallError("accept", err), "listener fd %d", s.fd)
		}
		conn := newTCPSocket(fd, s.family)
		conn.unixPath = s.unixPath
		metrics.Add(metrics.ConnsAccepted, 1)
		conns = append(conns, conn)
	}
	return conns, nil
}

// Sockname returns the locally bound address.
func (s *TCPSocket) Sockname() (string, int, Family, error) {
	return s.sockname()
}

// Peername returns the peer address.
func (s *TCPSocket) Peername() (string, int, Family, error) {
	return s.peername()
}

// Shutdown closes one or both directions of the connection without
// releasing the descriptor.
func (s *TCPSocket) Shutdown(how ShutdownMode) error {
	var sysHow int
	switch how {
	case ShutdownRead:
		sysHow = unix.SHUT_RD
	case ShutdownWrite:
		sysHow = unix.SHUT_WR
	case ShutdownReadWrite:
		sysHow = unix.SHUT_RDWR
	default:
		return errors.Errorf("unknown shutdown mode %d", how)
	}
	return os.NewSyscallError("shutdown", unix.Shutdown(s.fd, sysHow))
}

// SetKeepAlive sets SO_KEEPALIVE.
func (s *TCPSocket) SetKeepAlive(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_KEEPALIVE, on)
}

// KeepAlive returns SO_KEEPALIVE.
func (s *TCPSocket) KeepAlive() (bool, error) {
	return s.getBool(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
}

// SetLinger sets SO_LINGER. With on and a zero timeout a close discards
// unsent data and resets the connection.
func (s *TCPSocket) SetLinger(on bool, seconds int) error {
	l := &unix.Linger{Linger: int32(seconds)}
	if on {
		l.Onoff = 1
	}
	return os.NewSyscallError("setsockopt",
		unix.SetsockoptLinger(s.fd, unix.SOL_SOCKET, unix.SO_LINGER, l))
}

// Linger returns SO_LINGER.
func (s *TCPSocket) Linger() (bool, int, error) {
	l, err := unix.GetsockoptLinger(s.fd, unix.SOL_SOCKET, unix.SO_LINGER)
	if err != nil {
		return false, 0, os.NewSyscallError("getsockopt", err)
	}
	return l.Onoff != 0, int(l.Linger), nil
}

// SetNoDelay sets TCP_NODELAY, disabling Nagle's algorithm.
func (s *TCPSocket) SetNoDelay(on bool) error {
	if s.family == UnixLocal {
		return errors.New("TCP_NODELAY on a unix domain socket")
	}
	return s.setBool(unix.IPPROTO_TCP, unix.TCP_NODELAY, on)
}

// NoDelay returns TCP_NODELAY.
func (s *TCPSocket) NoDelay() (bool, error) {
	if s.family == UnixLocal {
		return false, errors.New("TCP_NODELAY on a unix domain socket")
	}
	return s.getBool(unix.IPPROTO_TCP, unix.TCP_NODELAY)
}
