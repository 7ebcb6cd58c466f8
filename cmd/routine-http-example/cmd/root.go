/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package cmd provides the CLI commands for routine-http-example.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "routine-http-example",
	Short: "Reference server built on the routine-http engine",
	Long: `routine-http-example boots the routine-http engine as a standalone process.

Configuration is loaded from routine-http.yaml in the current directory,
$HOME/.routine-http/, or /etc/routine-http/.

Environment variables can override config values with the ROUTINE_HTTP_ prefix.
Example: ROUTINE_HTTP_PORT=9090

Commands:
  serve       Start the HTTP server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./routine-http.yaml)")
}
