// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import (
	"os"
	"os/signal"
)

// IgnoreSignal ignores the given signals process wide. Run calls it for
// SIGPIPE: without it a write to a disconnected peer kills the process.
func IgnoreSignal(sig ...os.Signal) {
	signal.Ignore(sig...)
}

// WaitForSignal parks the calling goroutine until one of the given
// signals arrives and returns it. Typical use: wait for SIGINT on the
// main goroutine, then call Shutdown.
func WaitForSignal(sig ...os.Signal) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	defer signal.Stop(ch)
	return <-ch
}
