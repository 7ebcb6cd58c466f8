/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package http implements the request-lifecycle engine of an
// embeddable HTTP/1.1 server library: the wire codec (this package),
// header collection (header), body storage (body), route registry
// (route), the two-phase handler contract (handler), the least-loaded
// worker pool (pool), the scheduler composing reactor and worker pools
// (scheduler), and the per-connection state machine (conn).
//
// TLS, logging sinks, JSON parsing beyond the body's Json variant, the
// process entry point, and configuration loading are external
// collaborators; this package only describes their contracts where it
// touches them.
package http
