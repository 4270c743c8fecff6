// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

import "time"

// Process level tunables. They take effect for objects created afterwards,
// change them at process start, before any loop or reactor is built.
var (
	// udpBufferSize is the preallocated read/write buffer size for UDP
	// sockets. A datagram larger than this is truncated by the kernel.
	udpBufferSize = 1500

	// eventNumber is the maximum number of events returned by one poller wait.
	eventNumber = 2048

	// bufferIOStep is the default chunk size of ReadAll/WriteAll.
	bufferIOStep = 1024

	// reactorShutdownTimeout bounds StopLoop waiting during reactor shutdown.
	reactorShutdownTimeout = 5000 * time.Millisecond
)

// SetUDPBufferSize sets the preallocated buffer size for UDP sockets.
func SetUDPBufferSize(n int) {
	if n > 0 {
		udpBufferSize = n
	}
}

// UDPBufferSize returns the preallocated buffer size for UDP sockets.
func UDPBufferSize() int {
	return udpBufferSize
}

// SetEventNumber sets the maximum number of events returned per poller wait.
func SetEventNumber(n int) {
	if n > 0 {
		eventNumber = n
	}
}

// EventNumber returns the maximum number of events returned per poller wait.
func EventNumber() int {
	return eventNumber
}

// SetBufferIOStep sets the default chunk size of ReadAll/WriteAll.
func SetBufferIOStep(n int) {
	if n > 0 {
		bufferIOStep = n
	}
}

// BufferIOStep returns the default chunk size of ReadAll/WriteAll.
func BufferIOStep() int {
	return bufferIOStep
}

// SetReactorShutdownTimeout sets the per-loop StopLoop timeout used by
// TCPServer.Shutdown and TCPClient.Shutdown.
func SetReactorShutdownTimeout(d time.Duration) {
	if d > 0 {
		reactorShutdownTimeout = d
	}
}

// ReactorShutdownTimeout returns the per-loop shutdown timeout.
func ReactorShutdownTimeout() time.Duration {
	return reactorShutdownTimeout
}
