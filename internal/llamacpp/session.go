// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ClaytonHin/localchat/internal/inference"
)

// Session is an inference.Session backed by a llama-server it owns.
type Session struct {
	client *Client
	server io.Closer

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ inference.Session = (*Session)(nil)

// Start launches llama-server for opts and returns a ready session.
func Start(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	srv, err := StartServer(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	sess := NewSession(NewClient(srv.BaseURL(), opts.Temperature), srv)
	go sess.watch(srv, logger)
	return sess, nil
}

// watch logs a server that dies while the session is still open. Later
// completions fail with a NotRunning error.
func (s *Session) watch(srv *Server, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	select {
	case <-s.done:
	case <-srv.Exited():
		select {
		case <-s.done:
			return
		default:
		}
		logger.Error("llama-server exited unexpectedly",
			zap.Error(srv.waitErr),
			zap.String("output", srv.tail(crashLines)))
	}
}

// NewSession pairs a client with the server it talks to. server may be nil
// when the process is managed elsewhere.
func NewSession(client *Client, server io.Closer) *Session {
	return &Session{client: client, server: server, done: make(chan struct{})}
}

// Complete implements inference.Completer. Completions hold a read lock so
// Close waits for an in-flight request before stopping the server.
func (s *Session) Complete(ctx context.Context, req inference.Request) (*inference.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, inference.Closed()
	}
	return s.client.Complete(ctx, req)
}

// Close stops the server. Later calls to Complete fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.client.CloseIdleConnections()
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
