/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package route implements the handler registry: a hash map for
// exact-match static paths plus a trie for single-parameter dynamic
// paths, fused with the parameter-trie design from
// http/route_handler.hpp.
package route

import (
	"fmt"
	"strings"
	"sync"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/handler"
)

// node is either a leaf (factory set) or an interior node (children
// populated). At most one child may be a parameter child, i.e. a
// segment registered as "{name}".
type node struct {
	factory    handler.Factory
	children   map[string]*node
	paramName  string
	paramChild *node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Router maps request paths to handler factories. It is safe for
// concurrent registration; it is expected to be read-only once the
// server starts running, but Router itself does not enforce that — it
// only guards its own internal maps.
type Router struct {
	mu      sync.RWMutex
	static  map[string]handler.Factory
	dynamic *node
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		static:  make(map[string]handler.Factory),
		dynamic: newNode(),
	}
}

// ErrConflictingParameter is returned by Register when a path segment
// registers a parameter name that conflicts with a sibling parameter
// already present at the same trie level.
type ErrConflictingParameter struct {
	Path     string
	Existing string
	New      string
}

func (e *ErrConflictingParameter) Error() string {
	return fmt.Sprintf("route: path %q has parameter %q but a sibling parameter %q already exists at this level",
		e.Path, e.New, e.Existing)
}

// Register adds factory for path. A path containing no "{" segment is
// inserted into the static map after normalization. Otherwise, it is
// walked segment by segment into the trie; registering a parameter
// segment whose name differs from an existing sibling parameter
// fails with *ErrConflictingParameter.
func (rt *Router) Register(path string, factory handler.Factory) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !strings.Contains(path, "{") {
		rt.static[normalize(path)] = factory
		return nil
	}

	segments := splitSegments(path)
	cur := rt.dynamic
	for _, seg := range segments {
		if isParam(seg) {
			name := seg[1 : len(seg)-1]
			if cur.paramChild != nil && cur.paramName != name {
				return &ErrConflictingParameter{Path: path, Existing: cur.paramName, New: name}
			}
			if cur.paramChild == nil {
				cur.paramChild = newNode()
				cur.paramName = name
			}
			cur = cur.paramChild
			continue
		}

		child, ok := cur.children[seg]
		if !ok {
			child = newNode()
			cur.children[seg] = child
		}
		cur = child
	}
	cur.factory = factory
	return nil
}

// Lookup resolves req's path to a handler instance. The static map is
// consulted first; on miss the trie is walked greedily and
// non-backtracking, preferring a literal child over a parameter child
// at every level, recording matched parameter segments into
// req.PathParams as it goes.
func (rt *Router) Lookup(req *rhttp.Request) (handler.Handler, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if factory, ok := rt.static[req.Path]; ok {
		return factory(), true
	}

	cur := rt.dynamic
	for _, seg := range splitSegments(req.Path) {
		if child, ok := cur.children[seg]; ok {
			cur = child
			continue
		}
		if cur.paramChild == nil {
			return nil, false
		}
		if req.PathParams == nil {
			req.PathParams = map[string]string{}
		}
		req.PathParams[cur.paramName] = seg
		cur = cur.paramChild
	}

	if cur.factory == nil {
		return nil, false
	}
	return cur.factory(), true
}

func isParam(seg string) bool {
	return len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func splitSegments(path string) []string {
	path = normalize(path)
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func normalize(path string) string {
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
