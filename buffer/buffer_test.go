// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package buffer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revent-io/revent/buffer"
)

func TestAppendConsumeRoundTrip(t *testing.T) {
	b := buffer.New(4)
	payload := []byte("hello buffer")
	b.Append(payload)
	assert.Equal(t, len(payload), b.Size())
	assert.Equal(t, payload[:5], b.Peek(5))
	assert.Equal(t, len(payload), b.Size())

	n := b.Consume(len(payload))
	assert.Equal(t, len(payload), n)
	assert.Equal(t, 0, b.Size())
}

func TestPeekClampsToSize(t *testing.T) {
	b := buffer.New(1)
	b.AppendString("abc")
	assert.Equal(t, []byte("abc"), b.Peek(100))
	assert.Equal(t, []byte("abc"), b.Peek(-1))
	assert.Equal(t, 3, b.Size())
}

func TestGrowthPreservesContent(t *testing.T) {
	b := buffer.New(1)
	var want bytes.Buffer
	for i := 0; i < 100; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, i%7+1)
		b.Append(chunk)
		want.Write(chunk)
	}
	require.Equal(t, want.Len(), b.Size())
	assert.Equal(t, want.Bytes(), b.Peek(want.Len()))
	// Doubling growth never shrinks.
	assert.GreaterOrEqual(t, b.Capacity(), b.Size())
}

func TestCompactionIdempotence(t *testing.T) {
	b := buffer.New(8)
	b.AppendString("abcdefgh")
	b.Consume(5)
	require.Equal(t, 5, b.Waste())

	b.Compact()
	assert.Equal(t, 0, b.Waste())
	assert.Equal(t, []byte("fgh"), b.Peek(-1))

	cap1 := b.Capacity()
	b.Compact()
	assert.Equal(t, 0, b.Waste())
	assert.Equal(t, []byte("fgh"), b.Peek(-1))
	assert.Equal(t, cap1, b.Capacity())
}

func TestGetConsume(t *testing.T) {
	b := buffer.New(4)
	b.AppendString("0123456789")

	assert.Equal(t, "0123", b.GetString(4, true))
	assert.Equal(t, "4567", b.GetString(4, false))
	assert.Equal(t, "456789", b.GetString(-1, true))
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, "", b.GetString(-1, true))
}

func TestClear(t *testing.T) {
	b := buffer.New(2)
	b.AppendString("xyz")
	b.Consume(1)
	b.Clear()
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 0, b.Waste())
	b.AppendString("ok")
	assert.Equal(t, "ok", b.GetString(-1, false))
}

func TestCloneIsDeep(t *testing.T) {
	b := buffer.New(4)
	b.AppendString("data")
	c := b.Clone()
	b.Consume(4)
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, "data", c.GetString(-1, false))
}

func TestMoveEmptiesSource(t *testing.T) {
	src := buffer.New(4)
	src.AppendString("moved")
	var dst buffer.Buffer
	dst.MoveFrom(src)

	assert.Equal(t, 0, src.Size())
	assert.Equal(t, 0, src.Capacity())
	assert.Equal(t, "moved", dst.GetString(-1, false))

	// The emptied source grows afresh on append.
	src.AppendString("again")
	assert.Equal(t, "again", src.GetString(-1, false))
}

func TestWritableSliceCommit(t *testing.T) {
	b := buffer.New(2)
	s := b.WritableSlice(8)
	require.Equal(t, 8, len(s))
	n := copy(s, "chunk")
	b.Commit(n)
	assert.Equal(t, "chunk", b.GetString(-1, false))
}

func TestAtPanicsOutOfRange(t *testing.T) {
	b := buffer.New(2)
	b.AppendString("a")
	assert.Equal(t, byte('a'), b.At(0))
	assert.Panics(t, func() { b.At(1) })
	assert.Panics(t, func() { b.At(-1) })
}
