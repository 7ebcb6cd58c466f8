/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the prefix every environment variable override carries,
// e.g. ROUTINE_HTTP_PORT.
const envPrefix = "ROUTINE_HTTP"

// Loader wraps a private *viper.Viper instance rather than reaching
// for viper's package-level globals, so multiple Loaders (as in
// tests) don't stomp each other's search paths and overrides.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader that reads configFile if it is non-empty
// and otherwise searches, in order, the current directory,
// $HOME/.routine-http, and /etc/routine-http for a routine-http.yaml,
// and accepts
// ROUTINE_HTTP_-prefixed environment overrides (e.g.
// ROUTINE_HTTP_IO_THREADS=8).
func NewLoader(configFile string) *Loader {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("routine-http")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".routine-http"))
		}
		v.AddConfigPath("/etc/routine-http")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows about, so each
	// ServerConfig key is bound to its environment variable explicitly.
	for _, key := range []string{"port", "io_threads", "cpu_threads", "io_timeout", "max_header_bytes", "log_level"} {
		_ = v.BindEnv(key)
	}

	return &Loader{v: v}
}

// Load reads whatever config file is found (a missing file is not an
// error; environment overrides and defaults still apply), unmarshals
// it into a ServerConfig, fills defaults, and validates.
func (l *Loader) Load() (*ServerConfig, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file actually read, or
// "" if none was found.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

