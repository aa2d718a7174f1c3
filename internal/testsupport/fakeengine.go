// Package testsupport provides a deterministic in-memory stand-in for
// engine.Engine, used by unit tests across carrier, container, and
// messenger instead of a live database.
package testsupport

import (
	"context"
	"sync"

	"github.com/tomellm/hermes/pkg/engine"
)

// QueryFunc lets a test control exactly what a Query call returns, and
// when — for example gating it on a channel to force a precise
// completion order across concurrent queries.
type QueryFunc func(ctx context.Context, stmt engine.Statement) ([]engine.Row, error)

// ExecuteFunc lets a test control exactly what an Execute/transaction
// statement does.
type ExecuteFunc func(ctx context.Context, stmt engine.Statement) error

// FakeEngine is a minimal engine.Engine implementation backed by
// in-memory hooks rather than a real database.
type FakeEngine struct {
	mu sync.Mutex

	Tables      []string
	QueryFunc   QueryFunc
	ExecuteFunc ExecuteFunc

	execLog []engine.Statement
}

// New returns a FakeEngine reporting tables as its schema. Queries
// return no rows and executes succeed until QueryFunc/ExecuteFunc are
// set.
func New(tables ...string) *FakeEngine {
	return &FakeEngine{Tables: tables}
}

func (f *FakeEngine) AllTableNames(_ context.Context) ([]string, error) {
	return f.Tables, nil
}

func (f *FakeEngine) Execute(ctx context.Context, stmt engine.Statement) error {
	f.mu.Lock()
	f.execLog = append(f.execLog, stmt)
	f.mu.Unlock()
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, stmt)
	}
	return nil
}

func (f *FakeEngine) Query(ctx context.Context, stmt engine.Statement) ([]engine.Row, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, stmt)
	}
	return nil, nil
}

func (f *FakeEngine) BeginTx(_ context.Context) (engine.Txn, error) {
	return &fakeTxn{parent: f}, nil
}

// ExecLog returns every statement that has been executed or committed
// so far, in order.
func (f *FakeEngine) ExecLog() []engine.Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Statement, len(f.execLog))
	copy(out, f.execLog)
	return out
}

type fakeTxn struct {
	parent     *FakeEngine
	statements []engine.Statement
}

func (t *fakeTxn) Execute(ctx context.Context, stmt engine.Statement) error {
	if t.parent.ExecuteFunc != nil {
		if err := t.parent.ExecuteFunc(ctx, stmt); err != nil {
			return err
		}
	}
	t.statements = append(t.statements, stmt)
	return nil
}

func (t *fakeTxn) Commit(_ context.Context) error {
	t.parent.mu.Lock()
	t.parent.execLog = append(t.parent.execLog, t.statements...)
	t.parent.mu.Unlock()
	return nil
}

func (t *fakeTxn) Rollback(_ context.Context) error {
	t.statements = nil
	return nil
}

// Gate is a one-shot signal a test can use to control exactly when a
// gated QueryFunc/ExecuteFunc is allowed to return, to force a precise
// interleaving between concurrent background tasks.
type Gate chan struct{}

// NewGate returns a closed-on-demand gate.
func NewGate() Gate { return make(Gate) }

// Open releases anything waiting on the gate.
func (g Gate) Open() { close(g) }

// Wait blocks until Open is called.
func (g Gate) Wait() { <-g }
