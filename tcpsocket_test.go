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

// newListener binds a loopback listener on an ephemeral port and returns
// it with the port the kernel picked.
func newListener(t *testing.T) (*revent.TCPSocket, int) {
	t.Helper()
	ls, err := revent.NewTCPSocket(revent.IPv4)
	require.NoError(t, err)
	t.Cleanup(func() { ls.Close() })
	require.NoError(t, ls.SetReuseAddr(true))
	require.NoError(t, ls.Bind("127.0.0.1", 0))
	require.NoError(t, ls.Listen(0))
	_, port, _, err := ls.Sockname()
	require.NoError(t, err)
	return ls, port
}

// acceptOne polls the listener until one connection arrives.
func acceptOne(t *testing.T, ls *revent.TCPSocket) *revent.TCPSocket {
	t.Helper()
	var conn *revent.TCPSocket
	require.Eventually(t, func() bool {
		conns, err := ls.Accept(1)
		if err != nil {
			return false
		}
		if len(conns) == 1 {
			conn = conns[0]
			return true
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectAccept(t *testing.T) {
	ls, port := newListener(t)

	cli, err := revent.NewTCPSocket(revent.IPv4)
	require.NoError(t, err)
	defer cli.Close()

	ok, err := cli.Connect("127.0.0.1", port)
	require.NoError(t, err)
	require.True(t, ok)

	srv := acceptOne(t, ls)

	ip, p := cli.TargetURI()
	assert.Equal(t, "127.0.0.1", ip)
	assert.Equal(t, port, p)
	require.Eventually(t, func() bool { return cli.CheckConnect() },
		3*time.Second, 5*time.Millisecond)

	// Addresses line up crosswise.
	srvIP, srvPort, f, err := srv.Sockname()
	require.NoError(t, err)
	assert.Equal(t, revent.IPv4, f)
	assert.Equal(t, "127.0.0.1", srvIP)
	assert.Equal(t, port, srvPort)
	peerIP, peerPort, _, err := srv.Peername()
	require.NoError(t, err)
	cliIP, cliPort, _, err := cli.Sockname()
	require.NoError(t, err)
	assert.Equal(t, cliIP, peerIP)
	assert.Equal(t, cliPort, peerPort)

	// Bytes flow both ways.
	cli.WBuffer().AppendString("request")
	_, err = cli.WriteAll(0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		srv.ReadAll(0)
		return srv.RBuffer().Size() == 7
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, "request", srv.RBuffer().GetString(-1, true))
}

func TestAcceptBatchRespectsEAGAIN(t *testing.T) {
	ls, port := newListener(t)

	const count = 3
	var clis []*revent.TCPSocket
	for i := 0; i < count; i++ {
		cli, err := revent.NewTCPSocket(revent.IPv4)
		require.NoError(t, err)
		defer cli.Close()
		ok, err := cli.Connect("127.0.0.1", port)
		require.NoError(t, err)
		require.True(t, ok)
		clis = append(clis, cli)
	}

	accepted := 0
	require.Eventually(t, func() bool {
		conns, err := ls.Accept(0)
		if err != nil {
			return false
		}
		for _, c := range conns {
			defer c.Close()
		}
		accepted += len(conns)
		return accepted == count
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, count, accepted)
}

func TestUnixConnectAcceptInheritsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.sock")
	ls, err := revent.NewTCPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer ls.Close()
	require.NoError(t, ls.BindUnix(path, true))
	require.NoError(t, ls.Listen(0))
	assert.Equal(t, path, ls.UnixPath())

	cli, err := revent.NewTCPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer cli.Close()
	ok, err := cli.ConnectUnix(path)
	require.NoError(t, err)
	require.True(t, ok)

	srv := acceptOne(t, ls)
	assert.Equal(t, path, srv.UnixPath())

	name, _, f, err := srv.Sockname()
	require.NoError(t, err)
	assert.Equal(t, revent.UnixLocal, f)
	assert.Equal(t, path, name)

	target, _ := cli.TargetURI()
	assert.Equal(t, path, target)
}

func TestBindUnixRemovesStalePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")

	first, err := revent.NewTCPSocket(revent.UnixLocal)
	require.NoError(t, err)
	require.NoError(t, first.BindUnix(path, false))
	require.NoError(t, first.Listen(0))
	first.Close()

	// The path is stale now; binding without remove fails, with remove
	// succeeds.
	second, err := revent.NewTCPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer second.Close()
	require.Error(t, second.BindUnix(path, false))

	third, err := revent.NewTCPSocket(revent.UnixLocal)
	require.NoError(t, err)
	defer third.Close()
	require.NoError(t, third.BindUnix(path, true))
}

func TestShutdownWriteSignalsEOF(t *testing.T) {
	ls, port := newListener(t)

	cli, err := revent.NewTCPSocket(revent.IPv4)
	require.NoError(t, err)
	defer cli.Close()
	ok, err := cli.Connect("127.0.0.1", port)
	require.NoError(t, err)
	require.True(t, ok)

	srv := acceptOne(t, ls)
	require.Eventually(t, func() bool { return cli.CheckConnect() },
		3*time.Second, 5*time.Millisecond)

	require.NoError(t, cli.Shutdown(revent.ShutdownWrite))
	require.Eventually(t, func() bool {
		srv.ReadAll(0)
		return srv.EOF()
	}, 3*time.Second, 5*time.Millisecond)
}

func TestConnectRefused(t *testing.T) {
	cli, err := revent.NewTCPSocket(revent.IPv4)
	require.NoError(t, err)
	defer cli.Close()

	// Nothing listens on port 1 of loopback. Either the connect
	// syscall fails immediately or the asynchronous SO_ERROR check
	// reports the refusal.
	ok, _ := cli.Connect("127.0.0.1", 1)
	if !ok {
		return
	}
	require.Eventually(t, func() bool { return !cli.CheckConnect() },
		3*time.Second, 5*time.Millisecond)
}

func TestSocketOptions(t *testing.T) {
	sock, err := revent.NewTCPSocket(revent.IPv4)
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, sock.SetReuseAddr(true))
	on, err := sock.ReuseAddr()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, sock.SetReusePort(true))
	on, err = sock.ReusePort()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, sock.SetKeepAlive(true))
	on, err = sock.KeepAlive()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, sock.SetNoDelay(true))
	on, err = sock.NoDelay()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, sock.SetLinger(true, 3))
	lon, secs, err := sock.Linger()
	require.NoError(t, err)
	assert.True(t, lon)
	assert.Equal(t, 3, secs)

	// The kernel may report the requested buffer size or its double.
	require.NoError(t, sock.SetRcvBuf(16384))
	size, err := sock.RcvBuf()
	require.NoError(t, err)
	assert.Contains(t, []int{16384, 32768}, size)

	require.NoError(t, sock.SetSndBuf(16384))
	size, err = sock.SndBuf()
	require.NoError(t, err)
	assert.Contains(t, []int{16384, 32768}, size)

	require.NoError(t, sock.SetRcvLowat(128))
	lowat, err := sock.RcvLowat()
	require.NoError(t, err)
	assert.Equal(t, 128, lowat)

	// Linux pins the send low water mark, only reading is portable.
	lowat, err = sock.SndLowat()
	require.NoError(t, err)
	assert.Greater(t, lowat, 0)

	soerr, err := sock.SoError()
	require.NoError(t, err)
	assert.Equal(t, 0, soerr)
}
