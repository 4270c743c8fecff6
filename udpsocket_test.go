// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	revent "github.com/revent-io/revent"
)

func newUDP(t *testing.T) (*revent.UDPSocket, int) {
	t.Helper()
	s, err := revent.NewUDPSocket(revent.IPv4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bind("127.0.0.1", 0))
	_, port, _, err := s.Sockname()
	require.NoError(t, err)
	return s, port
}

func TestUDPSendRecv(t *testing.T) {
	a, aport := newUDP(t)
	b, bport := newUDP(t)

	a.WBuffer().AppendString("datagram")
	ok, err := a.Send("127.0.0.1", bport)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, a.WBuffer().Size())

	var fromIP string
	var fromPort int
	require.Eventually(t, func() bool {
		ip, port, _, got, err := b.Recv()
		if err != nil || !got {
			return false
		}
		fromIP, fromPort = ip, port
		return true
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, "127.0.0.1", fromIP)
	assert.Equal(t, aport, fromPort)
	assert.Equal(t, "datagram", b.RBuffer().GetString(-1, true))
}

func TestUDPRecvDrainedReturnsNotOK(t *testing.T) {
	a, _ := newUDP(t)
	_, _, _, ok, err := a.Recv()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUDPRecvReplacesBuffer(t *testing.T) {
	a, _ := newUDP(t)
	b, bport := newUDP(t)

	for _, msg := range []string{"first", "second"} {
		a.WBuffer().AppendString(msg)
		ok, err := a.Send("127.0.0.1", bport)
		require.NoError(t, err)
		require.True(t, ok)

		require.Eventually(t, func() bool {
			_, _, _, got, err := b.Recv()
			return err == nil && got
		}, 3*time.Second, 5*time.Millisecond)
		assert.Equal(t, msg, b.RBuffer().GetString(-1, false))
	}
}

func TestUDPUnixDomain(t *testing.T) {
	dir := t.TempDir()
	apath := filepath.Join(dir, "a.sock")
	bpath := filepath.Join(dir, "b.sock")

	a, err := revent.NewUDPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.BindUnix(apath, true))

	b, err := revent.NewUDPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.BindUnix(bpath, true))

	a.WBuffer().AppendString("local gram")
	ok, err := a.SendUnix(bpath)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		from, _, f, got, err := b.Recv()
		if err != nil || !got {
			return false
		}
		assert.Equal(t, revent.UnixLocal, f)
		assert.Equal(t, apath, from)
		return true
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, "local gram", b.RBuffer().GetString(-1, true))
}

func TestUDPBroadcastOption(t *testing.T) {
	a, _ := newUDP(t)
	require.NoError(t, a.SetBroadcast(true))
	on, err := a.Broadcast()
	require.NoError(t, err)
	assert.True(t, on)
}

func TestUDPBuffersPreallocated(t *testing.T) {
	a, _ := newUDP(t)
	assert.GreaterOrEqual(t, a.RBuffer().Capacity(), revent.UDPBufferSize())
	assert.GreaterOrEqual(t, a.WBuffer().Capacity(), revent.UDPBufferSize())
}
