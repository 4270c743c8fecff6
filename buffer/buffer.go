// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package buffer provides a growable byte buffer with a moving read/write
// window. Every socket owns one buffer per direction, readers consume from
// the front of the window while writers append at the back, growth doubles
// the capacity and compaction reclaims the consumed prefix.
package buffer

// Buffer is an ordered mutable byte sequence. The readable bytes live in
// [start, end) of the backing array. Invariant: 0 <= start <= end <= cap.
//
// Buffer is a value type: Clone makes an independent deep copy, MoveFrom
// transfers ownership and empties the source. It is not safe for concurrent
// use, the loop that owns the fd is the only mutator.
type Buffer struct {
	buf   []byte
	start int
	end   int
}

// New creates a buffer with the given initial capacity. Capacity is at
// least 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{buf: make([]byte, capacity)}
}

// Size returns the number of readable bytes.
func (b *Buffer) Size() int {
	return b.end - b.start
}

// Capacity returns the size of the backing array.
func (b *Buffer) Capacity() int {
	return len(b.buf)
}

// Waste returns the number of consumed bytes still occupying the prefix of
// the backing array.
func (b *Buffer) Waste() int {
	return b.start
}

// At returns the i-th readable byte. It panics when i is out of range,
// which indicates a caller bug.
func (b *Buffer) At(i int) byte {
	if i < 0 || i >= b.Size() {
		panic("buffer: index out of range")
	}
	return b.buf[b.start+i]
}

// Data returns the readable window [start, end) of the backing array.
// The slice aliases the buffer, it is invalidated by any mutating call.
func (b *Buffer) Data() []byte {
	return b.buf[b.start:b.end]
}

// grow doubles the capacity until it can hold n bytes in total. Readable
// bytes keep their offsets, only the backing array is reallocated.
func (b *Buffer) grow(n int) {
	c := len(b.buf)
	if c >= n {
		return
	}
	if c < 1 {
		c = 1
	}
	for c < n {
		c *= 2
	}
	nbuf := make([]byte, c)
	copy(nbuf[b.start:b.end], b.buf[b.start:b.end])
	b.buf = nbuf
}

// Append appends p to the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	b.grow(b.end + len(p))
	copy(b.buf[b.end:], p)
	b.end += len(p)
}

// AppendString appends s to the buffer, growing as needed.
func (b *Buffer) AppendString(s string) {
	b.grow(b.end + len(s))
	copy(b.buf[b.end:], s)
	b.end += len(s)
}

// Consume advances the read offset by min(n, Size) and returns the number
// of bytes consumed.
func (b *Buffer) Consume(n int) int {
	if n < 0 || n > b.Size() {
		n = b.Size()
	}
	b.start += n
	return n
}

// Peek returns a copy of the next min(n, Size) bytes without advancing the
// read offset. n < 0 means all readable bytes.
func (b *Buffer) Peek(n int) []byte {
	return b.Get(n, false)
}

// Get returns a copy of the next min(n, Size) bytes. n < 0 means all
// readable bytes. If consume is true the read offset advances past the
// returned bytes, otherwise it is left unchanged.
func (b *Buffer) Get(n int, consume bool) []byte {
	if n < 0 || n > b.Size() {
		n = b.Size()
	}
	out := make([]byte, n)
	copy(out, b.buf[b.start:b.start+n])
	if consume {
		b.start += n
	}
	return out
}

// GetString is Get returning a string.
func (b *Buffer) GetString(n int, consume bool) string {
	return string(b.Get(n, consume))
}

// Compact moves the readable bytes to offset 0, zeroes the tail and resets
// the window to [0, Size). Compacting an already compact buffer is a no-op.
func (b *Buffer) Compact() {
	if b.start == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.start:b.end])
	for i := n; i < len(b.buf); i++ {
		b.buf[i] = 0
	}
	b.start, b.end = 0, n
}

// Clear zeroes the backing array and empties the window.
func (b *Buffer) Clear() {
	for i := range b.buf {
		b.buf[i] = 0
	}
	b.start, b.end = 0, 0
}

// Clone returns an independent deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	nb := &Buffer{
		buf:   make([]byte, len(b.buf)),
		start: b.start,
		end:   b.end,
	}
	copy(nb.buf, b.buf)
	return nb
}

// MoveFrom transfers other's backing array and window into b. After the
// move other is empty with no backing array, appending to it allocates
// afresh.
func (b *Buffer) MoveFrom(other *Buffer) {
	if b == other {
		return
	}
	b.buf, b.start, b.end = other.buf, other.start, other.end
	other.buf, other.start, other.end = nil, 0, 0
}

// WritableSlice grows the buffer so that n more bytes fit after the write
// offset and returns that spare region. The caller fills some prefix of it
// and reports the filled length with Commit.
func (b *Buffer) WritableSlice(n int) []byte {
	b.grow(b.end + n)
	return b.buf[b.end : b.end+n]
}

// Commit advances the write offset after the caller filled bytes obtained
// from WritableSlice.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.end+n > len(b.buf) {
		panic("buffer: commit out of range")
	}
	b.end += n
}
