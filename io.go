// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/revent-io/revent/buffer"
	"github.com/revent-io/revent/internal/safejob"
	"github.com/revent-io/revent/log"
)

// IO owns a file descriptor and its two byte buffers. Objects come out of
// the factory functions non-blocking; Close releases the descriptor
// exactly once and is safe to call repeatedly.
type IO struct {
	fd       int
	blocking bool
	closed   safejob.OnceJob
	rbuf     *buffer.Buffer
	wbuf     *buffer.Buffer

	// loop is the event loop currently managing this fd. It is written
	// under that loop's lock and read by handlers dispatched from it.
	loop *EventLoop
}

func newIO(fd int) IO {
	return IO{
		fd:   fd,
		rbuf: buffer.New(1),
		wbuf: buffer.New(1),
	}
}

// FD returns the file descriptor.
func (io *IO) FD() int {
	return io.fd
}

// RBuffer returns the read buffer.
func (io *IO) RBuffer() *buffer.Buffer {
	return io.rbuf
}

// WBuffer returns the write buffer.
func (io *IO) WBuffer() *buffer.Buffer {
	return io.wbuf
}

// Loop returns the event loop currently managing this fd, nil if none.
func (io *IO) Loop() *EventLoop {
	return io.loop
}

func (io *IO) setLoop(l *EventLoop) {
	io.loop = l
}

// IsClosed reports whether the descriptor has been released.
func (io *IO) IsClosed() bool {
	return io.closed.Closed()
}

// Close releases the file descriptor. Only the first call closes, later
// calls are no-ops.
func (io *IO) Close() {
	if !io.closed.Begin() {
		return
	}
	if err := unix.Close(io.fd); err != nil {
		log.Errorf("close fd %d: %v", io.fd, err)
	}
}

// SetBlocking switches the descriptor between blocking and non-blocking
// mode. Factory objects start out non-blocking.
func (io *IO) SetBlocking(blocking bool) error {
	if err := unix.SetNonblock(io.fd, !blocking); err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	io.blocking = blocking
	return nil
}

// IsBlocking reports whether the descriptor is in blocking mode.
func (io *IO) IsBlocking() bool {
	return io.blocking
}
