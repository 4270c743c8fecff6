// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package metrics provides runtime monitoring counters of the reactor,
// such as loop wakeups, dispatched events and connection churn, which is
// a good tool for performance tuning.
package metrics

import (
	"time"

	"go.uber.org/atomic"

	"github.com/revent-io/revent/log"
)

// All metrics definitions.
const (
	// The following constants are event loop metrics.

	LoopWakeups = iota
	LoopEvents
	LoopStaleEvents
	LoopHandlerErrors
	LoopStops

	// The following constants are stream I/O metrics.

	StreamReadCalls
	StreamReadBytes
	StreamWriteCalls
	StreamWriteBytes

	// The following constants are reactor metrics.

	ConnsAccepted
	ConnsEstablished
	ConnsClosed
	ConnectFailures
	AsyncWriteCalls

	// The following constants are UDP metrics.

	UDPRecvCalls
	UDPSendCalls

	// Keep it last.

	Max
)

var metrics [Max]atomic.Uint64

// Add adds delta to the metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get returns one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll gets all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	cur := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = cur[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	showAll(GetAll())
}

func showAll(m [Max]uint64) {
	log.Debug("######### revent metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	log.Debugf("%-55s: %d", "# LOOP - number of poller wakeups", m[LoopWakeups])
	log.Debugf("%-55s: %d", "# LOOP - number of dispatched events", m[LoopEvents])
	log.Debugf("%-55s: %d", "# LOOP - number of stale events dropped", m[LoopStaleEvents])
	log.Debugf("%-55s: %d", "# LOOP - number of handler errors", m[LoopHandlerErrors])
	log.Debugf("%-55s: %d", "# LOOP - number of loop stops", m[LoopStops])
	if m[LoopWakeups] > 0 {
		log.Debugf("%-55s: %.2f", "# LOOP - average events per wakeup",
			float64(m[LoopEvents])/float64(m[LoopWakeups]))
	}
	log.Debugf("%-55s: %d", "# STREAM - number of read system calls", m[StreamReadCalls])
	log.Debugf("%-55s: %d", "# STREAM - bytes read", m[StreamReadBytes])
	log.Debugf("%-55s: %d", "# STREAM - number of write system calls", m[StreamWriteCalls])
	log.Debugf("%-55s: %d", "# STREAM - bytes written", m[StreamWriteBytes])
	log.Debugf("%-55s: %d", "# TCP - number of connections accepted", m[ConnsAccepted])
	log.Debugf("%-55s: %d", "# TCP - number of connections established", m[ConnsEstablished])
	log.Debugf("%-55s: %d", "# TCP - number of connections closed", m[ConnsClosed])
	log.Debugf("%-55s: %d", "# TCP - number of connect failures", m[ConnectFailures])
	log.Debugf("%-55s: %d", "# TCP - number of AsyncWrite calls", m[AsyncWriteCalls])
	log.Debugf("%-55s: %d", "# UDP - number of recv system calls", m[UDPRecvCalls])
	log.Debugf("%-55s: %d", "# UDP - number of send system calls", m[UDPSendCalls])
}
