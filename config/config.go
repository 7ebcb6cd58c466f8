/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package config defines the embedding program's configuration
// schema and loads it with spf13/viper, validated with
// go-playground/validator/v10 — the process entry point's concerns,
// not the engine's.
package config

import "time"

// ServerConfig is the top-level configuration for the example server:
// listen port, pool sizes, I/O timeout, header-size limit, and log
// level.
type ServerConfig struct {
	// Port is the TCP port the acceptor binds on.
	Port int `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`

	// IOThreads sizes the scheduler's I/O pool.
	IOThreads int `yaml:"io_threads" mapstructure:"io_threads" validate:"omitempty,min=1"`

	// CPUThreads sizes the scheduler's worker pool.
	CPUThreads int `yaml:"cpu_threads" mapstructure:"cpu_threads" validate:"omitempty,min=1"`

	// IOTimeout is a duration string (e.g. "5s") bounding every
	// outstanding header read, body read, and response write.
	IOTimeout string `yaml:"io_timeout" mapstructure:"io_timeout" validate:"omitempty"`

	// MaxHeaderBytes caps the accumulated header section size before a
	// connection is rejected with 431 Request Header Fields Too Large.
	MaxHeaderBytes int `yaml:"max_header_bytes" mapstructure:"max_header_bytes" validate:"omitempty,min=1"`

	// LogLevel sets the minimum level the embedding program's logger
	// emits at.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// SetDefaults fills any zero-valued field with its documented
// default. Call before Validate.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.IOThreads == 0 {
		c.IOThreads = 4
	}
	if c.CPUThreads == 0 {
		c.CPUThreads = 8
	}
	if c.IOTimeout == "" {
		c.IOTimeout = "5s"
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 16 * 1024
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// IOTimeoutDuration parses IOTimeout. Call only after Validate has
// confirmed it parses.
func (c *ServerConfig) IOTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.IOTimeout)
}
