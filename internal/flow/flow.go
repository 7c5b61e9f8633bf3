// Package flow runs a graph of prep/exec/post stages over a shared state value.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/logging"
)

// Action labels the edge taken after a stage's Post.
type Action string

const (
	// DefaultAction is the edge set by Node.Next.
	DefaultAction Action = "default"
	// TerminalError halts the flow cleanly when no explicit successor exists for it.
	TerminalError Action = "terminal_error"
)

// ErrAborted is returned when a stage fails beyond recovery or the context is cancelled.
var ErrAborted = errors.New("flow aborted")

// Stage is the unit of work. Prep reads the state, Exec does the fallible work
// and Post writes results back and picks the next edge.
type Stage[S any] interface {
	Prep(ctx context.Context, state S) (any, error)
	Exec(ctx context.Context, prep any) (any, error)
	Post(ctx context.Context, state S, prep, exec any) (Action, error)
}

// BatchStage runs Exec once per element returned by Prep.
type BatchStage[S any] interface {
	Prep(ctx context.Context, state S) ([]any, error)
	Exec(ctx context.Context, item any) (any, error)
	Post(ctx context.Context, state S, items []any, results []any) (Action, error)
}

// Fallback is implemented by stages that can recover once Exec has exhausted
// its retries. Without it the last error is returned.
type Fallback interface {
	ExecFallback(ctx context.Context, prep any, err error) (any, error)
}

// Halter is implemented by state values that want to record a terminal halt.
type Halter interface {
	RecordHalt(stage string)
}

// Node wraps a stage with retry settings and its outgoing edges.
type Node[S any] struct {
	Name       string
	MaxRetries int
	Wait       time.Duration

	stage      Stage[S]
	batch      BatchStage[S]
	successors map[Action]*Node[S]
}

// NodeOption configures a Node.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	maxRetries int
	wait       time.Duration
}

// WithRetries sets how many times Exec is attempted and the pause between attempts.
func WithRetries(maxRetries int, wait time.Duration) NodeOption {
	return func(o *nodeOptions) {
		o.maxRetries = maxRetries
		o.wait = wait
	}
}

func buildOptions(opts []NodeOption) nodeOptions {
	o := nodeOptions{maxRetries: 1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.maxRetries < 1 {
		o.maxRetries = 1
	}
	return o
}

// NewNode wraps a Stage.
func NewNode[S any](name string, stage Stage[S], opts ...NodeOption) *Node[S] {
	o := buildOptions(opts)
	return &Node[S]{
		Name:       name,
		MaxRetries: o.maxRetries,
		Wait:       o.wait,
		stage:      stage,
		successors: map[Action]*Node[S]{},
	}
}

// NewBatchNode wraps a BatchStage.
func NewBatchNode[S any](name string, stage BatchStage[S], opts ...NodeOption) *Node[S] {
	o := buildOptions(opts)
	return &Node[S]{
		Name:       name,
		MaxRetries: o.maxRetries,
		Wait:       o.wait,
		batch:      stage,
		successors: map[Action]*Node[S]{},
	}
}

// Next sets the default successor and returns it so calls can be chained.
func (n *Node[S]) Next(target *Node[S]) *Node[S] {
	return n.On(DefaultAction, target)
}

// On sets the successor for action and returns it.
func (n *Node[S]) On(action Action, target *Node[S]) *Node[S] {
	if _, exists := n.successors[action]; exists {
		log.Warn().Str("stage", n.Name).Str("action", string(action)).Msg("Overwriting successor")
	}
	n.successors[action] = target
	return target
}

// Successor returns the node reached through action, if any.
func (n *Node[S]) Successor(action Action) (*Node[S], bool) {
	next, ok := n.successors[action]
	return next, ok
}

func (n *Node[S]) run(ctx context.Context, state S) (Action, error) {
	if n.batch != nil {
		return n.runBatch(ctx, state)
	}

	prep, err := n.stage.Prep(ctx, state)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}
	res, err := n.execWithRetry(ctx, n.stage.Exec, prep)
	if err != nil {
		return "", err
	}
	action, err := n.stage.Post(ctx, state, prep, res)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	return action, nil
}

func (n *Node[S]) runBatch(ctx context.Context, state S) (Action, error) {
	items, err := n.batch.Prep(ctx, state)
	if err != nil {
		return "", fmt.Errorf("prep: %w", err)
	}
	results := make([]any, 0, len(items))
	for _, item := range items {
		// every element gets a fresh retry budget
		res, err := n.execWithRetry(ctx, n.batch.Exec, item)
		if err != nil {
			return "", err
		}
		results = append(results, res)
	}
	action, err := n.batch.Post(ctx, state, items, results)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	return action, nil
}

func (n *Node[S]) execWithRetry(ctx context.Context, exec func(context.Context, any) (any, error), prep any) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= n.MaxRetries; attempt++ {
		res, err := exec(ctx, prep)
		if err == nil {
			return res, nil
		}
		lastErr = err
		log.Debug().
			Str("stage", n.Name).
			Int("attempt", attempt).
			Int("max_retries", n.MaxRetries).
			Err(err).
			Msg("Stage exec failed")
		logging.GetCurrentLogger().Log("Stage %s attempt %d/%d failed: %v", n.Name, attempt, n.MaxRetries, err)

		if attempt == n.MaxRetries {
			break
		}
		if n.Wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(n.Wait):
			}
		}
	}

	var fb Fallback
	if n.stage != nil {
		fb, _ = n.stage.(Fallback)
	} else {
		fb, _ = n.batch.(Fallback)
	}
	if fb == nil {
		return nil, lastErr
	}
	return fb.ExecFallback(ctx, prep, lastErr)
}

// Flow walks the successor graph from its start node.
type Flow[S any] struct {
	start *Node[S]
}

// New creates a flow beginning at start.
func New[S any](start *Node[S]) *Flow[S] {
	return &Flow[S]{start: start}
}

// Run executes stages until an action has no successor. Cancellation is
// observed between stages only. The last action is returned.
func (f *Flow[S]) Run(ctx context.Context, state S) (Action, error) {
	current := f.start
	var action Action
	for current != nil {
		if err := ctx.Err(); err != nil {
			return action, fmt.Errorf("%w before stage %s: %w", ErrAborted, current.Name, err)
		}

		started := time.Now()
		log.Info().Str("stage", current.Name).Msg("Stage started")
		logging.GetCurrentLogger().LogSection("STAGE " + current.Name)

		var err error
		action, err = current.run(ctx, state)
		if err != nil {
			logging.GetCurrentLogger().LogError(current.Name, err)
			return action, fmt.Errorf("%w: stage %s: %w", ErrAborted, current.Name, err)
		}
		if action == "" {
			action = DefaultAction
		}
		log.Info().
			Str("stage", current.Name).
			Str("action", string(action)).
			Dur("duration", time.Since(started)).
			Msg("Stage finished")

		next, ok := current.successors[action]
		if !ok && action == TerminalError {
			if h, isHalter := any(state).(Halter); isHalter {
				h.RecordHalt(current.Name)
			}
			log.Warn().Str("stage", current.Name).Msg("Flow halted on terminal error")
			return action, nil
		}
		if !ok {
			return action, nil
		}
		current = next
	}
	return action, nil
}
