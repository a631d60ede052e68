// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ClaytonHin/localchat/internal/inference"
)

// The test binary doubles as a fake llama-server when this variable is set.
const fakeServerEnv = "LOCALCHAT_FAKE_LLAMA_SERVER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeServerEnv); mode != "" {
		os.Exit(runFakeServer(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

// runFakeServer mimics the parts of llama-server the package uses.
// Modes: "ok" serves normally after a few loading polls, "crash" exits
// immediately with an error message, "die" loads and then exits on the
// first completion.
func runFakeServer(mode string, args []string) int {
	if mode == "crash" {
		fmt.Fprintln(os.Stderr, "llama_model_load: error loading model: invalid magic")
		return 1
	}

	host, port := "127.0.0.1", ""
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--host":
			host = args[i+1]
		case "--port":
			port = args[i+1]
		}
	}

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		if mode == "die" {
			fmt.Fprintln(os.Stderr, "ggml_cuda_error: out of memory")
			os.Exit(3)
		}
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":          fmt.Sprintf("echo(%d)", len(req.Prompt)),
			"tokens_predicted": 2,
			"stopped_eos":      true,
		})
	})

	fmt.Println("main: server is listening")
	if err := http.ListenAndServe(net.JoinHostPort(host, port), mux); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func fakeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiny.gguf")
	require.NoError(t, os.WriteFile(path, []byte("GGUF"), 0600))
	return path
}

func fakeOptions(t *testing.T, mode string) Options {
	return Options{
		ModelPath:      fakeModel(t),
		ServerPath:     os.Args[0],
		ContextSize:    2048,
		BatchSize:      1024,
		MicroBatchSize: 1024,
		GPULayers:      -1,
		Temperature:    0.4,
		Env:            []string{fakeServerEnv + "=" + mode},
		StartupTimeout: 10 * time.Second,
		ShutdownGrace:  2 * time.Second,
		PollInterval:   20 * time.Millisecond,
	}
}

func TestOptions_Args(t *testing.T) {
	opts := Options{
		ModelPath:      "/m/dolphin.gguf",
		Host:           "127.0.0.1",
		ContextSize:    2048,
		BatchSize:      1024,
		MicroBatchSize: 1024,
		GPULayers:      -1,
		Temperature:    0.4,
		Verbose:        true,
		ExtraArgs:      []string{"--threads", "8"},
	}

	assert.Equal(t, []string{
		"--model", "/m/dolphin.gguf",
		"--host", "127.0.0.1",
		"--port", "8080",
		"--ctx-size", "2048",
		"--batch-size", "1024",
		"--ubatch-size", "1024",
		"--n-gpu-layers", "999",
		"--temp", "0.4",
		"--verbose",
		"--threads", "8",
	}, opts.Args(8080))

	opts.GPULayers = 20
	opts.Verbose = false
	args := opts.Args(1)
	assert.Contains(t, args, "20")
	assert.NotContains(t, args, "--verbose")
}

func TestStartServer_MissingModel(t *testing.T) {
	opts := fakeOptions(t, "ok")
	opts.ModelPath = filepath.Join(t.TempDir(), "missing.gguf")

	_, err := StartServer(context.Background(), opts, zaptest.NewLogger(t))
	assert.True(t, inference.IsModelNotFound(err))
}

func TestStartServer_MissingExecutable(t *testing.T) {
	opts := fakeOptions(t, "ok")
	opts.ServerPath = filepath.Join(t.TempDir(), "no-such-server")

	_, err := StartServer(context.Background(), opts, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, inference.KindStartup, inference.KindOf(err))
}

func TestStartServer_CrashDuringLoad(t *testing.T) {
	_, err := StartServer(context.Background(), fakeOptions(t, "crash"), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, inference.KindStartup, inference.KindOf(err))
	assert.Contains(t, err.Error(), "invalid magic")
}

func TestStart_Lifecycle(t *testing.T) {
	sess, err := Start(context.Background(), fakeOptions(t, "ok"), zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := sess.Complete(context.Background(), inference.Request{Prompt: "User: Hello\nAssistant: \n"})
	require.NoError(t, err)
	assert.Equal(t, "echo(24)", res.Text)
	assert.Equal(t, inference.StopEOS, res.StopReason)

	require.NoError(t, sess.Close())

	srv := sess.server.(*Server)
	select {
	case <-srv.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("llama-server still running after Close")
	}

	_, err = sess.Complete(context.Background(), inference.Request{Prompt: "again"})
	assert.True(t, inference.IsClosed(err))
}

func TestStart_ServerDiesWhileOpen(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sess, err := Start(context.Background(), fakeOptions(t, "die"), zap.New(core))
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Complete(context.Background(), inference.Request{Prompt: "User: Hi\nAssistant: \n"})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("llama-server exited unexpectedly").Len() == 1
	}, 5*time.Second, 20*time.Millisecond)
	entry := logs.FilterMessage("llama-server exited unexpectedly").All()[0]
	assert.Contains(t, entry.ContextMap()["output"], "out of memory")
}

func TestStart_CloseIsNotReportedAsCrash(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sess, err := Start(context.Background(), fakeOptions(t, "ok"), zap.New(core))
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	<-sess.server.(*Server).Exited()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, logs.FilterMessage("llama-server exited unexpectedly").Len())
}

func TestStartServer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StartServer(ctx, fakeOptions(t, "ok"), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, inference.KindStartup, inference.KindOf(err))
}
