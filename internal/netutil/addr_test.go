// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package netutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/revent-io/revent/internal/netutil"
)

func TestIPSockaddrRoundTrip(t *testing.T) {
	sa, err := netutil.IPSockaddr("127.0.0.1", 8080, false)
	require.NoError(t, err)
	ip, port, err := netutil.SockaddrIPPort(sa)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
	assert.Equal(t, 8080, port)
	assert.False(t, netutil.IsIPv6(sa))

	sa6, err := netutil.IPSockaddr("::1", 9090, true)
	require.NoError(t, err)
	ip6, port6, err := netutil.SockaddrIPPort(sa6)
	require.NoError(t, err)
	assert.Equal(t, "::1", ip6)
	assert.Equal(t, 9090, port6)
	assert.True(t, netutil.IsIPv6(sa6))
}

func TestIPSockaddrWildcard(t *testing.T) {
	sa, err := netutil.IPSockaddr("", 7, false)
	require.NoError(t, err)
	v4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)
	assert.Equal(t, [4]byte{}, v4.Addr)
}

func TestIPSockaddrInvalid(t *testing.T) {
	_, err := netutil.IPSockaddr("nonsense", 1, false)
	assert.Error(t, err)
	_, err = netutil.IPSockaddr("::1", 1, false)
	assert.Error(t, err)
	_, err = netutil.IPSockaddr("1.2.3.4", -1, false)
	assert.Error(t, err)
}

func TestUnixSockaddr(t *testing.T) {
	sa, err := netutil.UnixSockaddr("/tmp/revent.sock")
	require.NoError(t, err)
	path, port, err := netutil.SockaddrIPPort(sa)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/revent.sock", path)
	assert.Equal(t, 0, port)
	assert.True(t, netutil.IsUnix(sa))

	_, err = netutil.UnixSockaddr("")
	assert.Error(t, err)
	_, err = netutil.UnixSockaddr("/tmp/" + strings.Repeat("x", netutil.UnixPathMax))
	assert.Error(t, err)
}
