// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package locker provides a spinlock for short critical sections, such as
// the connector's pending and failure maps.
package locker

import (
	"runtime"
	"sync/atomic"
)

const (
	unlocked = 0
	locked   = 1
)

// A Locker is a spinlock exclusion lock.
// The zero value for a Locker is unlocked.
type Locker uint32

// New creates a Locker.
func New() *Locker {
	var l Locker
	return &l
}

// Lock locks l. If the lock is already in use, the calling goroutine
// spins until the locker is available.
func (l *Locker) Lock() {
	for !atomic.CompareAndSwapUint32((*uint32)(l), unlocked, locked) {
		runtime.Gosched()
	}
}

// Unlock unlocks l. A locked Locker is not associated with a particular
// goroutine, one goroutine may lock and another unlock.
func (l *Locker) Unlock() {
	atomic.StoreUint32((*uint32)(l), unlocked)
}

// TryLock tries to lock l without blocking, and reports whether it
// succeeded.
func (l *Locker) TryLock() bool {
	return atomic.CompareAndSwapUint32((*uint32)(l), unlocked, locked)
}

// IsLocked reports whether the locker is currently held.
func (l *Locker) IsLocked() bool {
	return atomic.LoadUint32((*uint32)(l)) == locked
}
