// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package revent

// DispatchPolicy selects how acceptors and connectors place a new
// connection on a worker loop.
type DispatchPolicy int

// Dispatch policies.
const (
	// DispatchMinLoads picks the worker with the fewest registered
	// handler pairs. This is the default.
	DispatchMinLoads DispatchPolicy = iota

	// DispatchRandom picks a worker uniformly at random.
	DispatchRandom
)

// Option configures a TCPServer or TCPClient.
type Option struct {
	f func(*options)
}

type options struct {
	singleAcceptor bool
	reusePort      bool
	dispatch       DispatchPolicy
	externalData   any
}

func (o *options) setDefault() {
	o.singleAcceptor = true
	o.dispatch = DispatchMinLoads
}

// WithSingleAcceptor controls whether all listeners share one acceptor
// goroutine (the default) or each listener gets its own.
func WithSingleAcceptor(single bool) Option {
	return Option{func(o *options) {
		o.singleAcceptor = single
	}}
}

// WithReusePort makes inet listeners bind with SO_REUSEPORT.
func WithReusePort(on bool) Option {
	return Option{func(o *options) {
		o.reusePort = on
	}}
}

// WithDispatchPolicy selects the worker placement policy for new
// connections.
func WithDispatchPolicy(p DispatchPolicy) Option {
	return Option{func(o *options) {
		o.dispatch = p
	}}
}

// WithExternalData attaches user data to the reactor, reachable from
// handlers via ExternalData.
func WithExternalData(data any) Option {
	return Option{func(o *options) {
		o.externalData = data
	}}
}
