// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import "github.com/panjf2000/ants/v2"

var (
	maxRoutines = 0 // meaning INT32_MAX.
	usrPool, _  = ants.NewPool(maxRoutines)
)

// Submit submits a task to the default user business goroutine pool.
//
// Handlers must not block their loop goroutine; work that may block (disk
// I/O, slow computation) belongs here. Connection buffers stay owned by
// the loop, a pool task hands results back through its own channels.
func Submit(task func()) error {
	return usrPool.Submit(task)
}
