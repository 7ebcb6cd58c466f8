/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package body implements the polymorphic message-body storage the
// connection state machine and request handlers share: a tagged
// variant over {None, Memory, File, Json} behind a single operation
// surface, ported from the body_storage.hpp/.cpp virtual-class design
// in the original C++ source.
package body

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Kind identifies which concrete storage a Body value is backed by.
type Kind int

const (
	None Kind = iota
	Memory
	File
	Json
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Memory:
		return "memory"
	case File:
		return "file"
	case Json:
		return "json"
	default:
		return "unknown"
	}
}

// ErrNoneWrite is returned by the None sink for every write attempt.
var ErrNoneWrite = errors.New("body: write to None storage")

// Body is the capability every message-body sink implements. Writers
// append; a sink is read back as a whole (there is no streaming read
// side to this engine — the whole body is always buffered by the time
// a handler's process phase runs).
type Body interface {
	Kind() Kind
	Write(p []byte) error
	WriteString(s string) error
	Read() ([]byte, error)
	Size() int64
	String() string
	Close() error
}

// noneBody rejects every write. Nothing in the engine installs it on
// its own: a request whose Prepare leaves Body nil gets the
// connection's default Memory or Json sink instead.
type noneBody struct{}

// NewNone returns the None body variant.
func NewNone() Body { return noneBody{} }

func (noneBody) Kind() Kind                { return None }
func (noneBody) Write([]byte) error        { return ErrNoneWrite }
func (noneBody) WriteString(string) error  { return ErrNoneWrite }
func (noneBody) Read() ([]byte, error)     { return nil, nil }
func (noneBody) Size() int64               { return 0 }
func (noneBody) String() string            { return "" }
func (noneBody) Close() error               { return nil }

// MemoryBody appends to a contiguous in-memory byte slice.
type MemoryBody struct {
	data []byte
}

// NewMemory returns an empty Memory body.
func NewMemory() *MemoryBody { return &MemoryBody{} }

func (b *MemoryBody) Kind() Kind { return Memory }

func (b *MemoryBody) Write(p []byte) error {
	b.data = append(b.data, p...)
	return nil
}

func (b *MemoryBody) WriteString(s string) error {
	b.data = append(b.data, s...)
	return nil
}

func (b *MemoryBody) Read() ([]byte, error) {
	return b.data, nil
}

func (b *MemoryBody) Size() int64 { return int64(len(b.data)) }

func (b *MemoryBody) String() string { return string(b.data) }

func (b *MemoryBody) Close() error { return nil }

// JsonBody parses each write as a complete JSON document, overwriting
// any prior content. A parse error does not abort the connection: it
// is reported through OnError (if set) and the sink is left empty, so
// that process() runs normally and can check Value() for nil.
type JsonBody struct {
	raw     []byte
	value   any
	OnError func(error)
}

// NewJson returns an empty Json body.
func NewJson() *JsonBody { return &JsonBody{} }

func (b *JsonBody) Kind() Kind { return Json }

func (b *JsonBody) Write(p []byte) error {
	var v any
	if err := json.Unmarshal(p, &v); err != nil {
		b.raw, b.value = nil, nil
		b.reportError(fmt.Errorf("body: invalid json: %w", err))
		return nil
	}
	b.raw = append([]byte(nil), p...)
	b.value = v
	return nil
}

func (b *JsonBody) WriteString(s string) error {
	return b.Write([]byte(s))
}

func (b *JsonBody) Read() ([]byte, error) {
	return b.raw, nil
}

func (b *JsonBody) Size() int64 { return int64(len(b.raw)) }

func (b *JsonBody) String() string { return string(b.raw) }

func (b *JsonBody) Close() error { return nil }

// Value returns the parsed JSON document, or nil if the last write
// failed to parse (or no write ever happened).
func (b *JsonBody) Value() any { return b.value }

func (b *JsonBody) reportError(err error) {
	if b.OnError != nil {
		b.OnError(err)
	}
}

// FileBody streams appended bytes straight to a temp file instead of
// buffering the whole body in memory, for request bodies too large to
// hold comfortably in a Memory sink.
type FileBody struct {
	f    *os.File
	size int64
}

// NewFile creates a FileBody backed by a fresh temp file under dir
// (os.TempDir() if dir is empty).
func NewFile(dir string) (*FileBody, error) {
	f, err := os.CreateTemp(dir, "routine-http-body-*")
	if err != nil {
		return nil, fmt.Errorf("body: create temp file: %w", err)
	}
	return &FileBody{f: f}, nil
}

func (b *FileBody) Kind() Kind { return File }

func (b *FileBody) Write(p []byte) error {
	n, err := b.f.Write(p)
	b.size += int64(n)
	if err != nil {
		return fmt.Errorf("body: write temp file: %w", err)
	}
	return nil
}

func (b *FileBody) WriteString(s string) error {
	return b.Write([]byte(s))
}

func (b *FileBody) Read() ([]byte, error) {
	if _, err := b.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("body: seek temp file: %w", err)
	}
	data, err := io.ReadAll(b.f)
	if err != nil {
		return nil, fmt.Errorf("body: read temp file: %w", err)
	}
	return data, nil
}

func (b *FileBody) Size() int64 { return b.size }

func (b *FileBody) String() string {
	data, err := b.Read()
	if err != nil {
		return ""
	}
	return string(data)
}

// Close removes the backing temp file. Callers that create a FileBody
// must Close it once the body is no longer needed.
func (b *FileBody) Close() error {
	name := b.f.Name()
	if err := b.f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
