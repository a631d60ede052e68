// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonHin/localchat/internal/inference"
)

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.calls++
	return c.err
}

func TestSession_CloseReleasesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	closer := &countingCloser{}
	s := NewSession(NewClient(srv.URL, 0.4), closer)

	res, err := s.Complete(context.Background(), inference.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, closer.calls)

	_, err = s.Complete(context.Background(), inference.Request{Prompt: "p"})
	assert.True(t, errors.Is(err, inference.ErrClosed))
}

func TestSession_CloseError(t *testing.T) {
	closer := &countingCloser{err: errors.New("boom")}
	s := NewSession(NewClient("http://127.0.0.1:1", 0), closer)

	assert.EqualError(t, s.Close(), "boom")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestSession_CloseWaitsForInFlightCompletion(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		record("reply sent")
		_, _ = w.Write([]byte(`{"content":"late reply"}`))
	}))
	defer srv.Close()
	s := NewSession(NewClient(srv.URL, 0.4), closerFunc(func() error {
		record("server closed")
		return nil
	}))

	type outcome struct {
		res *inference.Result
		err error
	}
	completed := make(chan outcome, 1)
	go func() {
		res, err := s.Complete(context.Background(), inference.Request{Prompt: "p"})
		completed <- outcome{res, err}
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a completion was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	out := <-completed
	require.NoError(t, out.err)
	assert.Equal(t, "late reply", out.res.Text)
	require.NoError(t, <-closed)

	mu.Lock()
	assert.Equal(t, []string{"reply sent", "server closed"}, events)
	mu.Unlock()

	_, err := s.Complete(context.Background(), inference.Request{Prompt: "p"})
	assert.True(t, inference.IsClosed(err))
}
