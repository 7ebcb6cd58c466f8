/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/body"
	"github.com/AlexaFrom/routine-http/config"
	"github.com/AlexaFrom/routine-http/conn"
	"github.com/AlexaFrom/routine-http/handler"
	"github.com/AlexaFrom/routine-http/netio"
	"github.com/AlexaFrom/routine-http/obs"
	"github.com/AlexaFrom/routine-http/scheduler"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the /metrics and /health endpoints listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Info("loaded config", "file", used)
	}

	ioTimeout, err := cfg.IOTimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid io_timeout: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	s := scheduler.New(metrics)
	s.SetLogger(logger)
	s.SetIOTimeout(ioTimeout)
	s.SetMaxHeaderBytes(cfg.MaxHeaderBytes)
	registerExampleRoutes(s, logger)

	obs.RegisterPoolGauges(reg, "io", s.IOPool())
	obs.RegisterPoolGauges(reg, "cpu", s.CPUPool())

	acceptor, err := netio.NewAcceptor(s, cfg.Port, cfg.IOThreads, cfg.CPUThreads, conn.NewDriver(logger))
	if err != nil {
		return fmt.Errorf("failed to bind listener: %w", err)
	}

	metricsSrv := &stdhttp.Server{
		Addr:    metricsAddr,
		Handler: metricsMux(reg),
	}
	go func() {
		logger.Info("starting metrics server", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("routine-http-example starting",
		"addr", acceptor.Addr(),
		"io_threads", cfg.IOThreads,
		"cpu_threads", cfg.CPUThreads,
		"io_timeout", ioTimeout,
	)

	acceptor.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("routine-http-example stopped")
	return nil
}

func metricsMux(reg *prometheus.Registry) *stdhttp.ServeMux {
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/health", stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	return mux
}

// registerExampleRoutes installs the handful of demonstration routes
// an embedding program typically wires up first: a liveness-style
// root, a JSON-prepare echo endpoint, and a parameterized path
// exercising the router's trie.
func registerExampleRoutes(s *scheduler.Scheduler, logger *slog.Logger) {
	router := s.Router()

	_ = router.Register("/", handler.FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
		return rhttp.NewTextResponse(rhttp.StatusOK, "routine-http-example is running")
	}))

	_ = router.Register("/echo", func() handler.Handler {
		return jsonEchoHandler{}
	})

	_ = router.Register("/greet/{name}", handler.FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
		name := req.PathParams["name"]
		return rhttp.NewTextResponse(rhttp.StatusOK, fmt.Sprintf("hello, %s", name))
	}))

	_ = router.Register("/upload", uploadFactory(logger))
}

// jsonEchoHandler installs a Json sink and echoes the "message" field
// of the decoded body, falling back to a fixed string when the field
// is absent or the body failed to parse.
type jsonEchoHandler struct{}

func (jsonEchoHandler) Prepare(req *rhttp.Request) *rhttp.Response {
	req.Body = body.NewJson()
	return nil
}

func (jsonEchoHandler) Process(req *rhttp.Request) *rhttp.Response {
	if jb, ok := req.Body.(*body.JsonBody); ok {
		if m, ok := jb.Value().(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				return rhttp.NewTextResponse(rhttp.StatusOK, msg)
			}
		}
	}
	return rhttp.NewTextResponse(rhttp.StatusOK, "No message")
}

// uploadHandler installs a File body sink instead of the connection's
// default Memory/Json choice, for request bodies an embedding program
// doesn't want held entirely in memory.
type uploadHandler struct {
	logger *slog.Logger
}

func (h uploadHandler) Prepare(req *rhttp.Request) *rhttp.Response {
	if req.Method == rhttp.MethodHead {
		return nil
	}
	fb, err := body.NewFile("")
	if err != nil {
		return rhttp.NewTextResponse(rhttp.StatusInternalServerError, "failed to prepare upload storage")
	}
	req.Body = fb
	return nil
}

func (h uploadHandler) Process(req *rhttp.Request) *rhttp.Response {
	size := int64(0)
	if req.Body != nil {
		size = req.Body.Size()
	}
	if fb, ok := req.Body.(*body.FileBody); ok {
		defer fb.Close()
	}
	h.logger.Info("upload received", "request_id", req.ID, "bytes", size)
	return rhttp.NewTextResponse(rhttp.StatusOK, fmt.Sprintf("received %d bytes", size))
}

func uploadFactory(logger *slog.Logger) handler.Factory {
	return func() handler.Handler {
		return uploadHandler{logger: logger}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
