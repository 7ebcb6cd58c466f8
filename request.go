/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlexaFrom/routine-http/body"
	"github.com/AlexaFrom/routine-http/header"
)

// ErrMalformedStartLine is returned by ParseRequest when the request
// line does not have exactly three space-delimited tokens or names a
// version other than HTTP/1.0 or HTTP/1.1.
var ErrMalformedStartLine = errors.New("http: malformed request line")

// Request is immutable after parse except for its body slot and
// parameter maps, which are populated by the prepare phase and the
// router respectively.
type Request struct {
	Method  Method
	Path    string
	Version Version
	Header  header.Header

	Query      map[string]string
	PathParams map[string]string

	Body body.Body

	// ID correlates one request across the prepare/process thread
	// handoff for logging and metrics. It has no wire representation.
	ID string
}

// newRequest allocates a Request with initialized maps.
func newRequest() *Request {
	return &Request{
		Header:     header.New(),
		Query:      map[string]string{},
		PathParams: map[string]string{},
	}
}

// ParseRequest parses the start line and header section out of
// headerBytes, which must contain a full header block terminated by
// "\r\n\r\n". The body, if any, is read separately by the connection
// state machine once Content-Length is known.
func ParseRequest(headerBytes []byte) (*Request, error) {
	text := string(headerBytes)
	// Trim the blank-line terminator; it carries no information once
	// we've already been told the header section is complete.
	text = strings.TrimSuffix(text, "\r\n\r\n")
	text = strings.TrimSuffix(text, "\n\n")

	lines := strings.Split(text, "\r\n")
	if len(lines) == 1 {
		lines = strings.Split(text, "\n")
	}
	if len(lines) == 0 || lines[0] == "" {
		return nil, ErrMalformedStartLine
	}

	req := newRequest()

	startLine := strings.SplitN(lines[0], " ", 3)
	if len(startLine) != 3 {
		return nil, ErrMalformedStartLine
	}

	req.Method = methodFromString(startLine[0])
	req.Version = versionFromString(startLine[2])
	if req.Version != Version10 && req.Version != Version11 {
		return nil, ErrMalformedStartLine
	}

	target := startLine[1]
	path, query := splitTargetQuery(target)
	req.Path = normalizePath(path)
	req.Query = query

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			// A header line without ':' after column 2 is skipped
			// silently, not treated as a parse error.
			continue
		}
		req.Header.Set(name, value)
	}

	return req, nil
}

// splitHeaderLine mirrors the original parser's line.find(':', 2)
// rule: the colon must appear at index >= 2, so a line can't be split
// on a colon inside its first two characters.
func splitHeaderLine(line string) (name, value string, ok bool) {
	line = strings.TrimSuffix(line, "\r")
	idx := strings.Index(line[minInt(2, len(line)):], ":")
	if idx < 0 {
		return "", "", false
	}
	idx += minInt(2, len(line))

	name = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// splitTargetQuery splits a request target on the first '?' and
// decodes "key=value&key=value" query parameters. A value-less
// parameter retains an empty string value.
func splitTargetQuery(target string) (path string, query map[string]string) {
	query = map[string]string{}

	idx := strings.IndexByte(target, '?')
	if idx < 0 {
		return target, query
	}

	path = target[:idx]
	rawQuery := target[idx+1:]
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			query[pair[:eq]] = pair[eq+1:]
		} else {
			query[pair] = ""
		}
	}
	return path, query
}

// normalizePath collapses consecutive '/' and trims a trailing '/'
// unless the path is exactly "/". Idempotent: normalizePath of an
// already-normalized path is a no-op.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}

	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	if out == "" {
		out = "/"
	}
	return out
}

// ConnectionClose reports whether the request's Connection header
// asks the server to close the connection after this exchange.
func (r *Request) ConnectionClose() bool {
	return strings.EqualFold(r.Header.Get("connection"), "close")
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s %s", r.Method, r.Path, r.Version)
}
