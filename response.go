/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/AlexaFrom/routine-http/body"
	"github.com/AlexaFrom/routine-http/header"
)

// Server is the value written into every outgoing response's Server
// header unless the handler already set one.
const Server = "RoutineHttpLibrary"

// httpDateLayout is RFC 7231's IMF-fixdate, always rendered in GMT.
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response carries a status, a header collection, and an optional
// body source. Body is shared (not owned exclusively) because a
// response may be built once by a handler while the connection state
// machine independently serializes it.
type Response struct {
	Status Status
	Header header.Header
	Body   body.Body
}

// NewResponse builds a response with an empty header collection and
// no body.
func NewResponse(status Status) *Response {
	return &Response{Status: status, Header: header.New()}
}

// NewTextResponse builds a response whose body is the given string,
// stored in a Memory sink.
func NewTextResponse(status Status, text string) *Response {
	r := NewResponse(status)
	mem := body.NewMemory()
	_ = mem.WriteString(text)
	r.Body = mem
	return r
}

// Encode serializes the response in HTTP/1.1 wire format: the status
// line, headers in iteration order, a blank line, then the body
// bytes. Before emission it fills in Server, Date, Content-Length and
// (when a body is present and none was set) a default Content-Type.
func (r *Response) Encode() []byte {
	h := r.Header
	if h == nil {
		h = header.New()
	}

	if !h.Has("server") {
		h.Set("server", Server)
	}
	h.Set("date", nowHTTPDate())

	var bodyBytes []byte
	if r.Body != nil {
		data, _ := r.Body.Read()
		bodyBytes = data
		if !h.Has("content-type") {
			h.Set("content-type", "text/plain")
		}
	}
	h.Set("content-length", strconv.Itoa(len(bodyBytes)))

	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(int(r.Status)))
	b.WriteByte(' ')
	b.WriteString(r.Status.Text())
	b.WriteString("\r\n")

	for k, v := range h {
		b.WriteString(header.WireKey(k))
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(bodyBytes)

	return []byte(b.String())
}

func nowHTTPDate() string {
	return time.Now().UTC().Format(httpDateLayout)
}
