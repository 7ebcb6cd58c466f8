/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package netio binds a TCP listener to a scheduler, adapted from
// net/acceptor.hpp's Acceptor<Session> template: construct over a
// scheduler and a port, then run until told to stop. It is the only
// piece of the library that knows how to open a socket; everything
// downstream of accept() is the scheduler's and conn's job.
package netio

import (
	"context"
	"fmt"
	"net"

	"github.com/AlexaFrom/routine-http/scheduler"
)

// Acceptor owns a bound TCP listener and the scheduler that serves
// connections accepted on it.
type Acceptor struct {
	scheduler  *scheduler.Scheduler
	ln         net.Listener
	driver     scheduler.Driver
	ioThreads  int
	cpuThreads int
}

// NewAcceptor binds an IPv4 TCP listener on port and pairs it with s.
// driver is invoked per accepted connection by the scheduler's I/O
// pool; ioThreads and cpuThreads size the two pools started by Run.
func NewAcceptor(s *scheduler.Scheduler, port, ioThreads, cpuThreads int, driver scheduler.Driver) (*Acceptor, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("netio: listen on port %d: %w", port, err)
	}
	return &Acceptor{
		scheduler:  s,
		ln:         ln,
		driver:     driver,
		ioThreads:  ioThreads,
		cpuThreads: cpuThreads,
	}, nil
}

// Addr returns the listener's bound address, useful when port 0 was
// requested and the kernel chose one.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Run starts the scheduler's pools and blocks until ctx is canceled.
// Cancellation is the work-guard that ends every accept-and-drive task
// the scheduler started; Run returns once they have all exited.
func (a *Acceptor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		// Unblocks every pending Accept() so each I/O worker's loop can
		// observe ctx.Err() and return instead of blocking forever.
		a.ln.Close()
	}()

	a.scheduler.Run(ctx, a.ln, a.ioThreads, a.cpuThreads, a.driver)
	<-ctx.Done()
	a.scheduler.Join()
}

// Shutdown closes the listener so no further connections are
// accepted. It does not itself stop in-flight connections; cancel the
// context passed to Run for that.
func (a *Acceptor) Shutdown() error {
	return a.ln.Close()
}
