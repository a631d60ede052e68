// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ClaytonHin/localchat/internal/inference"
	"github.com/ClaytonHin/localchat/internal/model"
)

// Generation parameters used for every turn.
const (
	MaxTokens = 1024
	StopWord  = "User:"
)

var (
	// ErrEmptyInput is returned for blank submissions. Callers ignore it.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned when a turn is already being generated.
	ErrBusy = errors.New("a reply is still being generated")
)

// Prompt builds the completion prompt for one user message. Only the
// current message is sent; earlier turns are not part of the context.
func Prompt(raw string) string {
	return fmt.Sprintf("User: %s\nAssistant: \n", raw)
}

// Turn is one user submission and, once finished, its reply.
type Turn struct {
	ID      string
	Input   string
	Prompt  string
	Started time.Time

	// Set by Finish.
	Reply  string
	Result *inference.Result
	Err    error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithScroll registers the callback that moves the display to the newest
// entry after a reply is appended.
func WithScroll(fn func()) Option {
	return func(c *Controller) { c.scroll = fn }
}

// WithTimeout bounds each generation. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLog uses an existing conversation log.
func WithLog(log *model.Log) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// Controller owns the conversation log and the pending input.
type Controller struct {
	session inference.Completer
	log     *model.Log
	logger  *zap.Logger
	scroll  func()
	timeout time.Duration

	mu     sync.Mutex
	input  string
	busy   bool
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a controller over session. If session also implements
// inference.Session, Shutdown closes it.
func New(session inference.Completer, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		log:     model.NewLog(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnScroll replaces the scroll callback. Front ends that are built after
// the controller use it to hook their display in.
func (c *Controller) OnScroll(fn func()) {
	c.mu.Lock()
	c.scroll = fn
	c.mu.Unlock()
}

// Log returns the conversation log.
func (c *Controller) Log() *model.Log {
	return c.log
}

// SetInput replaces the pending input.
func (c *Controller) SetInput(s string) {
	c.mu.Lock()
	c.input = s
	c.mu.Unlock()
}

// Input returns the pending input.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Busy reports whether a turn is open.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Submit handles one submission end to end and blocks while the model
// generates. A generation failure still closes the turn and is returned.
func (c *Controller) Submit(ctx context.Context, raw string) (*Turn, error) {
	turn, err := c.Begin(raw)
	if err != nil {
		return nil, err
	}
	res, genErr := c.Generate(ctx, turn)
	return turn, c.Finish(turn, res, genErr)
}

// Begin opens a turn: the pending input is cleared and the user line is
// appended before any generation starts.
func (c *Controller) Begin(raw string) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, inference.Closed()
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}
	if c.busy {
		return nil, ErrBusy
	}

	c.input = ""
	if _, err := c.log.AppendUser(raw); err != nil {
		return nil, err
	}
	c.busy = true

	turn := &Turn{
		ID:      uuid.NewString(),
		Input:   raw,
		Prompt:  Prompt(raw),
		Started: time.Now(),
	}
	c.logger.Debug("turn started", zap.String("turn", turn.ID), zap.Int("input_len", len(raw)))
	return turn, nil
}

// Generate runs the completion for turn. It touches no controller state and
// may run on any goroutine.
func (c *Controller) Generate(ctx context.Context, turn *Turn) (*inference.Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.session.Complete(ctx, inference.Request{
		Prompt:    turn.Prompt,
		MaxTokens: MaxTokens,
		Stop:      []string{StopWord},
		Echo:      false,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !inference.IsTimeout(err) {
			err = inference.NewError(inference.KindTimeout, err, "generation timed out")
		}
		return nil, err
	}
	return res, nil
}

// Finish closes turn with the result of Generate and asks the display to
// scroll. It returns genErr unchanged.
func (c *Controller) Finish(turn *Turn, res *inference.Result, genErr error) error {
	reply := ""
	switch {
	case genErr != nil:
		reply = fmt.Sprintf("(generation failed: %v)", genErr)
	case res != nil:
		reply = res.Text
	}

	c.mu.Lock()
	_, appendErr := c.log.AppendAssistant(reply)
	c.busy = false
	scroll := c.scroll
	c.mu.Unlock()

	turn.Reply = reply
	turn.Result = res
	turn.Err = genErr

	fields := []zap.Field{
		zap.String("turn", turn.ID),
		zap.Duration("elapsed", time.Since(turn.Started)),
	}
	if genErr != nil {
		c.logger.Error("generation failed", append(fields, zap.Error(genErr))...)
	} else if res != nil {
		c.logger.Info("turn finished", append(fields,
			zap.Int("prompt_tokens", res.PromptTokens),
			zap.Int("completion_tokens", res.CompletionTokens),
			zap.String("stop", string(res.StopReason)),
			zap.Float64("tokens_per_sec", res.TokensPerSecond()))...)
	}
	if appendErr != nil {
		c.logger.Error("reply not recorded", zap.String("turn", turn.ID), zap.Error(appendErr))
	}

	if scroll != nil {
		scroll()
	}
	return genErr
}

// Shutdown releases the inference session. It is safe to call more than
// once; later submissions fail with inference.ErrClosed. If a generation is
// in flight the session decides whether Close waits for it.
func (c *Controller) Shutdown() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.log.Pending() {
			c.logger.Warn("releasing session with an unanswered turn")
		}

		if s, ok := c.session.(inference.Session); ok {
			c.closeErr = s.Close()
		}
		if c.closeErr != nil {
			c.logger.Error("failed to release inference session", zap.Error(c.closeErr))
		} else {
			c.logger.Info("inference session released")
		}
	})
	return c.closeErr
}
