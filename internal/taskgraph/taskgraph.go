// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package taskgraph implements the "first to finish or signal wins" join
// over the cooperative tasks active during a streaming session.
// The graph ends when the first task returns or an external signal fires;
// cancelable tasks are then canceled, while non-cancelable tasks keep
// running until they observe their own exit condition and are awaited
// before the result is reported.
package taskgraph

import (
	"context"
	"sync"
)

// Task is one cooperative loop registered with a Graph.
type Task struct {
	// Name identifies the task in logs and in the Result.
	Name string
	// Cancelable tasks are expected to return promptly once Run's context
	// is canceled because a sibling finished first. Non-cancelable tasks
	// (keepalive_sender_loop, control_receive_loop) must observe their own
	// exit condition; Run's context is still canceled for them, but Graph
	// waits for them to return on their own before Run returns.
	Cancelable bool
	// Fn is the task body. It must return promptly after ctx is canceled
	// if Cancelable is true.
	Fn func(ctx context.Context) error
}

// Result is what ended the graph: the first task to return, and its error
// (nil for a clean exit such as video_receive_loop observing the device
// leave the resumed state).
type Result struct {
	WinnerName string
	Err        error
}

// Graph runs every registered Task concurrently under one context derived
// from the caller's. The graph ends when the first task returns (for any
// reason, error or not) or the caller's disconnect signal fires; at that
// point every cancelable task is canceled, and Run blocks until every
// non-cancelable task has also returned before reporting Result.
type Graph struct {
	tasks []Task
}

// New builds an empty Graph.
func New() *Graph {
	return &Graph{}
}

// Add registers one task. Must be called before Run.
func (g *Graph) Add(t Task) {
	g.tasks = append(g.tasks, t)
}

// Run starts every registered task and blocks until the graph ends.
// disconnect, if non-nil, is an external signal (the session's
// DISCONNECT_NOTIFIER) that ends the graph exactly like a task finishing.
func (g *Graph) Run(ctx context.Context, disconnect <-chan struct{}) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type finish struct {
		name string
		err  error
	}

	finishes := make(chan finish, len(g.tasks))
	var wg sync.WaitGroup

	for _, t := range g.tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := t.Fn(runCtx)
			finishes <- finish{name: t.Name, err: err}
		}()
	}

	var result Result
	select {
	case f := <-finishes:
		result = Result{WinnerName: f.name, Err: f.err}
	case <-disconnect:
		result = Result{WinnerName: "disconnect_notifier"}
	}

	// Cancel unblocks cancelable tasks; non-cancelable tasks must notice
	// runCtx.Done() themselves (checking a session flag, an error on their
	// next I/O) and return on their own. Either way we wait for all of
	// them so the supervisor's teardown never races a still-running task.
	cancel()
	wg.Wait()
	close(finishes)

	return result
}
