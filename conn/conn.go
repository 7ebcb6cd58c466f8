/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package conn implements the per-connection state machine described
// in http_session.hpp/.cpp: ReadingHeaders, PreparingBody, ReadingBody,
// Queued, Processing, Writing, Closing and Closed, driving the
// keep-alive loop over the engine's two-phase handler contract and
// scheduler.
package conn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/body"
	"github.com/AlexaFrom/routine-http/handler"
	"github.com/AlexaFrom/routine-http/scheduler"
)

// Close reasons reported to the metrics capability and logged,
// mirroring the original's is_errors/close(ec) distinction.
const (
	ReasonTimedOut           = "timed_out"
	ReasonIOError            = "io_error"
	ReasonChunkedUnsupported = "chunked_unsupported"
	ReasonClientClose        = "client_close"
	ReasonHeadersTooLarge    = "headers_too_large"
)

var headerDelim = []byte("\r\n\r\n")

// readChunk is the size of each raw socket read while accumulating
// the header section or a request body.
const readChunk = 4096

// conn holds the state a single connection carries across the
// keep-alive loop: the socket, the scheduler it was accepted by, and
// any bytes read past the boundary of the thing currently being
// parsed (header section or body), which must survive into the next
// read.
type conn struct {
	c      net.Conn
	s      *scheduler.Scheduler
	logger *slog.Logger
	buf    []byte
}

// NewDriver returns a scheduler.Driver that serves accepted
// connections to completion, logging state transitions and close
// reasons through logger (slog.Default() if nil).
func NewDriver(logger *slog.Logger) scheduler.Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, s *scheduler.Scheduler, c net.Conn) {
		serve(ctx, s, c, logger)
	}
}

func serve(ctx context.Context, s *scheduler.Scheduler, c net.Conn, logger *slog.Logger) {
	defer c.Close()
	cn := &conn{c: c, s: s, logger: logger}

	for {
		keepAlive, reason := cn.serveOne(ctx)
		if !keepAlive {
			if m := s.Metrics(); m != nil {
				m.ConnectionClosed(reason)
			}
			level := slog.LevelDebug
			if reason == ReasonTimedOut || reason == ReasonIOError || reason == ReasonChunkedUnsupported || reason == ReasonHeadersTooLarge {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "connection closed", "reason", reason, "remote", c.RemoteAddr())
			return
		}
	}
}

// serveOne drives one full request/response exchange: ReadingHeaders
// through Writing. The returned bool reports whether the caller
// should loop for another request on the same connection; when false,
// reason names why the connection is closing.
func (cn *conn) serveOne(ctx context.Context) (keepAlive bool, reason string) {
	timeout := cn.s.IOTimeout()

	headerBytes, err := cn.readHeaders(ctx, timeout, cn.s.MaxHeaderBytes())
	if err != nil {
		if errors.Is(err, errHeadersTooLarge) {
			cn.writeBestEffort(rhttp.NewTextResponse(rhttp.StatusRequestHeaderFieldsTooLarge, "request headers too large"), timeout)
			return false, ReasonHeadersTooLarge
		}
		return false, classifyError(err)
	}

	req, err := rhttp.ParseRequest(headerBytes)
	if err != nil {
		cn.writeBestEffort(rhttp.NewTextResponse(rhttp.StatusBadRequest, "malformed request"), timeout)
		return false, ReasonIOError
	}
	req.ID = uuid.New().String()

	if strings.EqualFold(req.Header.Get("transfer-encoding"), "chunked") {
		cn.writeBestEffort(rhttp.NewTextResponse(rhttp.StatusNotImplemented, "chunked transfer encoding is not supported"), timeout)
		return false, ReasonChunkedUnsupported
	}

	start := time.Now()
	resp, err := cn.handle(ctx, req, timeout)
	if err != nil {
		return false, classifyError(err)
	}
	if m := cn.s.Metrics(); m != nil {
		m.RequestServed(req.Path, int(resp.Status), time.Since(start))
	}

	if err := cn.write(resp, timeout); err != nil {
		return false, classifyError(err)
	}

	if req.ConnectionClose() {
		return false, ReasonClientClose
	}
	return true, ""
}

// handle resolves the route, runs PreparingBody and ReadingBody, and
// hands off to the worker pool for Processing. It returns a non-nil
// error only for I/O failures reading the body; every other outcome
// (route miss, handler short-circuit, absent process response)
// produces a Response instead of an error.
func (cn *conn) handle(ctx context.Context, req *rhttp.Request, timeout time.Duration) (*rhttp.Response, error) {
	h, matched := cn.s.RouteRequest(req)
	if !matched {
		return rhttp.NewTextResponse(rhttp.StatusNotFound, fmt.Sprintf("no route registered for %s", req.Path)), nil
	}

	if ready := h.Prepare(req); ready != nil {
		return ready, nil
	}

	if req.Body == nil {
		req.Body = cn.defaultBodySink(req)
	}

	if n, ok := contentLength(req); ok && n > 0 {
		data, err := cn.readBody(ctx, n, timeout)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Write(data)
	}

	return cn.process(h, req), nil
}

// process hands req off to the CPU pool and blocks until the
// handler's Process method returns, the only suspension point on the
// path back from the worker pool to the I/O thread driving this
// connection.
func (cn *conn) process(h handler.Handler, req *rhttp.Request) *rhttp.Response {
	result := make(chan *rhttp.Response, 1)
	cn.s.PrepareTask(func() {
		result <- h.Process(req)
	})
	resp := <-result
	if resp == nil {
		return rhttp.NewTextResponse(rhttp.StatusInternalServerError, fmt.Sprintf("handler for %s produced no response", req.Path))
	}
	return resp
}

// errHeadersTooLarge is returned by readHeaders when the accumulated
// header section exceeds maxHeaderBytes without finding the blank-line
// terminator.
var errHeadersTooLarge = errors.New("conn: header section exceeds maximum size")

// readHeaders accumulates socket reads into cn.buf until the blank
// line terminator is found, re-arming the read deadline on entry to
// every underlying read as the timeout policy requires. maxHeaderBytes
// <= 0 disables the cap.
func (cn *conn) readHeaders(ctx context.Context, timeout time.Duration, maxHeaderBytes int) ([]byte, error) {
	for {
		if idx := bytes.Index(cn.buf, headerDelim); idx >= 0 {
			end := idx + len(headerDelim)
			headerBytes := append([]byte(nil), cn.buf[:end]...)
			cn.buf = cn.buf[end:]
			return headerBytes, nil
		}
		if maxHeaderBytes > 0 && len(cn.buf) > maxHeaderBytes {
			return nil, errHeadersTooLarge
		}
		if err := cn.fill(ctx, timeout); err != nil {
			return nil, err
		}
	}
}

// readBody returns exactly n bytes, using whatever was already
// buffered past the header terminator (the "buffered bytes >=
// Content-Length, synthesize completion immediately" case) before
// issuing further reads.
func (cn *conn) readBody(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	for len(cn.buf) < n {
		if err := cn.fill(ctx, timeout); err != nil {
			return nil, err
		}
	}
	data := cn.buf[:n]
	cn.buf = cn.buf[n:]
	return data, nil
}

func (cn *conn) fill(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout > 0 {
		if err := cn.c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	tmp := make([]byte, readChunk)
	n, err := cn.c.Read(tmp)
	if n > 0 {
		cn.buf = append(cn.buf, tmp[:n]...)
	}
	return err
}

// write re-arms the write deadline and serializes resp onto the
// socket.
func (cn *conn) write(resp *rhttp.Response, timeout time.Duration) error {
	if timeout > 0 {
		if err := cn.c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := cn.c.Write(resp.Encode())
	return err
}

// writeBestEffort writes resp and discards any error: it is used on
// paths that are already closing the connection for another reason,
// where a failed write changes nothing.
func (cn *conn) writeBestEffort(resp *rhttp.Response, timeout time.Duration) {
	_ = cn.write(resp, timeout)
}

func contentLength(req *rhttp.Request) (int, bool) {
	raw := req.Header.Get("content-length")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// defaultBodySink installs the sink a handler's Prepare declined to
// set explicitly: a Json sink for an application/json request, Memory
// otherwise. A Json parse failure is non-fatal: it is logged and
// Process still runs against an empty body.
func (cn *conn) defaultBodySink(req *rhttp.Request) body.Body {
	if strings.Contains(strings.ToLower(req.Header.Get("content-type")), "application/json") {
		jb := body.NewJson()
		jb.OnError = func(err error) {
			cn.logger.Warn("request body parse error", "request_id", req.ID, "error", err)
		}
		return jb
	}
	return body.NewMemory()
}

// classifyError maps a read/write error onto the fixed close-reason
// set the metrics and logging capabilities key off of. A canceled
// work-guard context falls into ReasonIOError: it is a server-driven
// shutdown, not a benign completion, and there is no dedicated reason
// slot for it.
func classifyError(err error) string {
	if errors.Is(err, io.EOF) {
		return ReasonClientClose
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimedOut
	}
	return ReasonIOError
}
