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

	"github.com/revent-io/revent/metrics"
)

// Stream is a byte stream fd: a pipe or fifo end, or the stream part of a
// TCP socket. It adds three sticky peer conditions on top of IO:
//
//   - EOF: the peer closed its write side, a read returned 0.
//   - EOP: a local write hit EPIPE.
//   - Reset: ECONNRESET was observed on either direction.
//
// These are conditions, not errors; chunked I/O keeps returning normally
// after setting them and the caller decides when to close.
type Stream struct {
	IO
	eof   bool
	eop   bool
	reset bool
}

func newStream(fd int) Stream {
	return Stream{IO: newIO(fd)}
}

// EOF reports whether a read observed end of file.
func (s *Stream) EOF() bool {
	return s.eof
}

// EOP reports whether a write observed a broken pipe.
func (s *Stream) EOP() bool {
	return s.eop
}

// IsReset reports whether the connection was reset by the peer.
func (s *Stream) IsReset() bool {
	return s.reset
}

// ReadChunk attempts one read of up to n bytes from the fd into the read
// buffer. It returns the number of bytes read; 0 means no data was
// available (or EOF/EPIPE/ECONNRESET, which set the matching flag).
// Any other errno is returned as an error.
func (s *Stream) ReadChunk(n int) (int, error) {
	if n <= 0 {
		n = bufferIOStep
	}
	dst := s.rbuf.WritableSlice(n)
	for {
		rd, err := unix.Read(s.fd, dst)
		metrics.Add(metrics.StreamReadCalls, 1)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err == unix.EPIPE:
			s.eop = true
			return 0, nil
		case err == unix.ECONNRESET:
			s.reset = true
			return 0, nil
		case err != nil:
			return 0, errors.Wrapf(os.NewSyscallError("read", err), "fd %d", s.fd)
		case rd == 0:
			s.eof = true
			return 0, nil
		default:
			s.rbuf.Commit(rd)
			metrics.Add(metrics.StreamReadBytes, uint64(rd))
			return rd, nil
		}
	}
}

// WriteChunk attempts one write of up to n bytes from the write buffer to
// the fd. Written bytes are consumed from the buffer; when the buffer
// drains completely it is cleared. The return convention matches
// ReadChunk.
func (s *Stream) WriteChunk(n int) (int, error) {
	if n <= 0 {
		n = bufferIOStep
	}
	if n > s.wbuf.Size() {
		n = s.wbuf.Size()
	}
	src := s.wbuf.Data()[:n]
	for {
		wr, err := unix.Write(s.fd, src)
		metrics.Add(metrics.StreamWriteCalls, 1)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err == unix.EPIPE:
			s.eop = true
			return 0, nil
		case err == unix.ECONNRESET:
			s.reset = true
			return 0, nil
		case err != nil:
			return 0, errors.Wrapf(os.NewSyscallError("write", err), "fd %d", s.fd)
		default:
			s.wbuf.Consume(wr)
			if s.wbuf.Size() == 0 {
				s.wbuf.Clear()
			}
			metrics.Add(metrics.StreamWriteBytes, uint64(wr))
			return wr, nil
		}
	}
}

// ReadAll reads in chunks of step bytes until a short read, EOF or error.
// step <= 0 uses the configured I/O step. Calling ReadAll on a blocking
// stream is a caller bug: a drained fd would park the loop goroutine.
func (s *Stream) ReadAll(step int) (int, error) {
	if s.blocking {
		return 0, errors.New("blocking stream must not ReadAll")
	}
	if step <= 0 {
		step = bufferIOStep
	}
	total := 0
	for {
		cur, err := s.ReadChunk(step)
		if err != nil {
			return total, err
		}
		total += cur
		if cur != step {
			return total, nil
		}
	}
}

// WriteAll writes in chunks of step bytes until the buffer drains, the
// kernel buffer fills or an error occurs. Forbidden on blocking streams
// like ReadAll.
func (s *Stream) WriteAll(step int) (int, error) {
	if s.blocking {
		return 0, errors.New("blocking stream must not WriteAll")
	}
	if step <= 0 {
		step = bufferIOStep
	}
	total := 0
	for {
		cur, err := s.WriteChunk(step)
		if err != nil {
			return total, err
		}
		total += cur
		if cur != step {
			return total, nil
		}
	}
}
