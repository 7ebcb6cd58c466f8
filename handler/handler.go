/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package handler defines the two-phase request handler contract: one
// method runs on the I/O thread before the body is read, the other on
// a worker thread after. Ported from request_handler.hpp's virtual
// prepare_request/process_request pair.
package handler

import (
	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/body"
)

// Handler is produced fresh per request by a Factory. Instances are
// short-lived and are not required to be thread-safe between
// themselves, but the same instance's Prepare and Process run on
// different goroutines (I/O and worker respectively) and must agree
// on any state they share.
type Handler interface {
	// Prepare runs on the I/O thread after headers are parsed and
	// before the body is read. It may install a body sink on the
	// request (typically Memory or Json) and may return a non-nil
	// response to short-circuit: the body is then not read and the
	// response is written immediately.
	Prepare(req *rhttp.Request) *rhttp.Response

	// Process runs on a worker thread once the body, if any, has been
	// read. It returns the response to send; returning nil is an
	// application error and produces a synthesized 500.
	Process(req *rhttp.Request) *rhttp.Response
}

// Factory produces a fresh Handler instance per matched request.
type Factory func() Handler

// Base implements the default Prepare described in spec: install a
// Memory sink for any method other than HEAD, and never
// short-circuit. Embed Base in a handler that only needs to override
// Process.
type Base struct{}

func (Base) Prepare(req *rhttp.Request) *rhttp.Response {
	if req.Method != rhttp.MethodHead {
		req.Body = body.NewMemory()
	}
	return nil
}

// FuncHandler adapts a single Process function (with the default
// Prepare) into a Handler, for trivial routes that don't need to
// distinguish the two phases.
type FuncHandler struct {
	Base
	ProcessFunc func(req *rhttp.Request) *rhttp.Response
}

func (h FuncHandler) Process(req *rhttp.Request) *rhttp.Response {
	return h.ProcessFunc(req)
}

// FactoryFunc returns a Factory that produces a FuncHandler wrapping
// fn, suitable for Router.Register when a route needs no state beyond
// the closure itself.
func FactoryFunc(fn func(req *rhttp.Request) *rhttp.Response) Factory {
	return func() Handler {
		return &FuncHandler{ProcessFunc: fn}
	}
}
