// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package netutil provides address conversion and socket creation helpers
// shared by the I/O layer.
package netutil

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// UnixPathMax is the longest pathname a unix domain sockaddr can carry.
const UnixPathMax = 108

// IPSockaddr builds a sockaddr for ip:port. An empty ip means the
// wildcard address of the requested family. v6 selects AF_INET6.
func IPSockaddr(ip string, port int, v6 bool) (unix.Sockaddr, error) {
	if port < 0 || port > 65535 {
		return nil, errors.Errorf("invalid port %d", port)
	}
	if v6 {
		sa := &unix.SockaddrInet6{Port: port}
		if ip != "" {
			parsed := net.ParseIP(ip)
			if parsed == nil || parsed.To16() == nil {
				return nil, errors.Errorf("invalid ipv6 address %q", ip)
			}
			copy(sa.Addr[:], parsed.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: port}
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return nil, errors.Errorf("invalid ipv4 address %q", ip)
		}
		copy(sa.Addr[:], parsed.To4())
	}
	return sa, nil
}

// UnixSockaddr builds a sockaddr for a unix domain pathname.
func UnixSockaddr(path string) (*unix.SockaddrUnix, error) {
	if path == "" {
		return nil, errors.New("empty unix path")
	}
	if len(path) >= UnixPathMax {
		return nil, errors.Errorf("unix path %q exceeds %d bytes", path, UnixPathMax)
	}
	return &unix.SockaddrUnix{Name: path}, nil
}

// SockaddrIPPort converts a sockaddr to its printable ip and port. For a
// unix sockaddr the path is returned as ip and the port is 0.
func SockaddrIPPort(sa unix.Sockaddr) (string, int, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:]).String(), sa.Port, nil
	case *unix.SockaddrInet6:
		return net.IP(sa.Addr[:]).String(), sa.Port, nil
	case *unix.SockaddrUnix:
		return sa.Name, 0, nil
	default:
		return "", 0, errors.Errorf("unsupported sockaddr type %T", sa)
	}
}

// IsIPv6 reports whether the sockaddr belongs to the AF_INET6 family.
func IsIPv6(sa unix.Sockaddr) bool {
	_, ok := sa.(*unix.SockaddrInet6)
	return ok
}

// IsUnix reports whether the sockaddr belongs to the AF_UNIX family.
func IsUnix(sa unix.Sockaddr) bool {
	_, ok := sa.(*unix.SockaddrUnix)
	return ok
}
