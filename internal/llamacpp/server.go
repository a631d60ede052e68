// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ClaytonHin/localchat/internal/inference"
	"github.com/ClaytonHin/localchat/internal/logging"
	"github.com/ClaytonHin/localchat/internal/util"
)

// allLayers is what -ngl receives when every layer should be offloaded.
const allLayers = 999

// tailLines is how much server output is kept for startup error reports.
const tailLines = 20

// crashLines is how much of that tail goes into an unexpected-exit log.
const crashLines = 5

// Options configures the llama-server process.
type Options struct {
	ModelPath      string
	ServerPath     string // empty: search PATH and common install dirs
	Host           string
	Port           int // 0 picks a free port
	ContextSize    int
	BatchSize      int
	MicroBatchSize int
	GPULayers      int // negative offloads all layers
	Temperature    float64
	Verbose        bool
	ExtraArgs      []string
	Env            []string // appended to the inherited environment

	StartupTimeout time.Duration
	ShutdownGrace  time.Duration
	PollInterval   time.Duration // health poll pacing, default 250ms
}

func (o *Options) setDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 2 * time.Minute
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
}

// Args returns the llama-server command line for the options and port.
func (o *Options) Args(port int) []string {
	layers := o.GPULayers
	if layers < 0 {
		layers = allLayers
	}
	args := []string{
		"--model", o.ModelPath,
		"--host", o.Host,
		"--port", strconv.Itoa(port),
		"--ctx-size", strconv.Itoa(o.ContextSize),
		"--batch-size", strconv.Itoa(o.BatchSize),
		"--ubatch-size", strconv.Itoa(o.MicroBatchSize),
		"--n-gpu-layers", strconv.Itoa(layers),
		"--temp", strconv.FormatFloat(o.Temperature, 'f', -1, 64),
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return append(args, o.ExtraArgs...)
}

// Server is a running llama-server child process.
type Server struct {
	cmd     *exec.Cmd
	output  *logging.LineWriter
	logger  *zap.Logger
	grace   time.Duration
	baseURL string

	exited  chan struct{} // closed when the process exits
	waitErr error         // valid after exited is closed

	closeOnce sync.Once
	closeErr  error
}

// findServerExecutable searches for llama-server in PATH and common
// installation paths.
func findServerExecutable() (string, error) {
	for _, name := range []string{"llama-server", "llama-server.exe"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	possiblePaths := []string{
		"/usr/local/bin/llama-server",
		"/usr/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	if home, err := os.UserHomeDir(); err == nil {
		possiblePaths = append(possiblePaths,
			filepath.Join(home, ".local", "bin", "llama-server"),
			filepath.Join(home, "llama.cpp", "build", "bin", "llama-server"),
		)
	}

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("llama-server not found in PATH or common installation directories; " +
		"install llama.cpp or set llamacpp.server_path")
}

// freePort asks the kernel for an unused loopback port.
func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// StartServer launches llama-server and waits until the model is loaded.
// On failure no process is left running.
func StartServer(ctx context.Context, opts Options, logger *zap.Logger) (*Server, error) {
	opts.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, inference.NewError(inference.KindModelNotFound, err, "model file not available")
	}

	serverPath := opts.ServerPath
	if serverPath == "" {
		p, err := findServerExecutable()
		if err != nil {
			return nil, inference.NewError(inference.KindStartup, err, "failed to find llama-server")
		}
		serverPath = p
	}

	port := opts.Port
	if port == 0 {
		p, err := freePort(opts.Host)
		if err != nil {
			return nil, inference.NewError(inference.KindStartup, err, "failed to pick a port")
		}
		port = p
	}

	args := opts.Args(port)
	out := logging.NewLineWriter(logger.Named("llama-server"), tailLines)

	cmd := exec.Command(serverPath, args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = sysProcAttr()

	logger.Info("starting llama-server",
		zap.String("path", serverPath),
		zap.Strings("args", args))

	if err := cmd.Start(); err != nil {
		return nil, inference.NewError(inference.KindStartup, err,
			fmt.Sprintf("failed to start llama-server (path: %s)", serverPath))
	}

	s := &Server{
		cmd:     cmd,
		output:  out,
		logger:  logger,
		grace:   opts.ShutdownGrace,
		baseURL: "http://" + net.JoinHostPort(opts.Host, strconv.Itoa(port)),
		exited:  make(chan struct{}),
	}
	go func() {
		s.waitErr = cmd.Wait()
		out.Flush()
		close(s.exited)
	}()

	if err := s.waitReady(ctx, opts.StartupTimeout, opts.PollInterval); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// waitReady polls /health until it answers 200, the process exits, the
// timeout elapses or ctx is cancelled.
func (s *Server) waitReady(ctx context.Context, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := NewClient(s.baseURL, 0)
	defer client.CloseIdleConnections()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	start := time.Now()
	var lastErr error

	for {
		select {
		case <-s.exited:
			return inference.NewError(inference.KindStartup, s.waitErr,
				"llama-server exited during startup"+s.tail(tailLines))
		default:
		}

		// Wait fails early when the next tick would pass the deadline.
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return inference.NewError(inference.KindStartup, ctx.Err(), "llama-server startup cancelled")
			}
			return inference.NewError(inference.KindTimeout, lastErr,
				fmt.Sprintf("llama-server not ready after %s", timeout))
		}

		checkCtx, checkCancel := context.WithTimeout(ctx, interval*4)
		lastErr = client.Health(checkCtx)
		checkCancel()

		if lastErr == nil {
			s.logger.Info("llama-server ready",
				zap.String("url", s.baseURL),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		}
	}
}

// tail formats the last n lines of server output for an error message.
func (s *Server) tail(n int) string {
	lines := s.output.Tail()
	if len(lines) == 0 {
		return ""
	}
	return ":\n" + util.LastLines(strings.Join(lines, "\n"), n)
}

// BaseURL returns the server address.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// Exited is closed when the server process ends.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

// Close stops the server: a polite termination signal first, then a kill
// after the grace period. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
			s.logger.Info("llama-server already exited")
			return
		default:
		}

		s.logger.Info("stopping llama-server", zap.Int("pid", s.cmd.Process.Pid))
		if err := terminate(s.cmd.Process); err != nil {
			s.logger.Warn("terminate failed, killing", zap.Error(err))
		}

		select {
		case <-s.exited:
		case <-time.After(s.grace):
			s.logger.Warn("llama-server did not exit in time, killing",
				zap.Duration("grace", s.grace))
			if err := kill(s.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.closeErr = fmt.Errorf("failed to kill llama-server: %w", err)
			}
			<-s.exited
		}
		s.logger.Info("llama-server stopped")
	})
	return s.closeErr
}
