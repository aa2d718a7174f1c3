// Package actor provides Handle, a lightweight cloneable write-only
// reference to the Change Bus, for worker goroutines that need to
// mutate data without owning a view Container.
package actor

import (
	"context"

	"github.com/siddontang/go-log/loggers"

	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/metrics"
	"github.com/tomellm/hermes/pkg/tablescan"
)

// Handle holds only an engine reference, the all-tables snapshot, and a
// sender straight into the Change Bus — no per-view state at all, so
// Clone is a cheap value copy. Tasks spawned from a Handle announce
// their affected tables directly to the Bus, bypassing any Carrier's
// tick-driven forwarding.
type Handle struct {
	eng       engine.Engine
	allTables []string
	busSender chan<- []string
	metrics   metrics.Sink
	logger    loggers.Advanced
	name      string
}

// New constructs a Handle. busSender is the Change Bus's
// tables-changed channel.
func New(eng engine.Engine, allTables []string, busSender chan<- []string, sink metrics.Sink, logger loggers.Advanced, name string) *Handle {
	return &Handle{
		eng:       eng,
		allTables: allTables,
		busSender: busSender,
		metrics:   sink,
		logger:    logger,
		name:      name,
	}
}

// Clone returns a write-only copy suitable for handing to another
// goroutine; all fields are already safe to share.
func (h *Handle) Clone() *Handle {
	clone := *h
	return &clone
}

// Execute fires a single write statement and forwards its affected
// tables straight to the Change Bus on success, without going through
// any per-view tick.
func (h *Handle) Execute(stmt engine.Statement) {
	tables := tablescan.Scan(h.allTables, stmt.SQL)
	h.logger.Infof("%s: handle execute=%s", h.name, tablescan.Truncate(stmt.SQL, 500))
	go func() {
		if err := h.eng.Execute(context.Background(), stmt); err != nil {
			h.logger.Errorf("%s: handle execute failed: %v", h.name, err)
			h.metrics.IncrCounter("handle_execute_failed", nil)
			return
		}
		h.metrics.IncrCounter("handle_execute_succeeded", nil)
		h.announce(tables)
	}()
}

// ExecuteMany runs a caller-built transaction and, on success, forwards
// the union of affected tables across every statement that committed.
func (h *Handle) ExecuteMany(build func(*engine.TransactionBuilder)) {
	b := &engine.TransactionBuilder{}
	build(b)
	stmts := b.Statements()
	perStmtTables := make([][]string, len(stmts))
	for i, s := range stmts {
		perStmtTables[i] = tablescan.Scan(h.allTables, s.SQL)
	}

	go func() {
		ctx := context.Background()
		txn, err := h.eng.BeginTx(ctx)
		if err != nil {
			h.logger.Errorf("%s: handle begin tx failed: %v", h.name, err)
			h.metrics.IncrCounter("handle_transaction_failed", nil)
			return
		}

		union := map[string]struct{}{}
		for i, s := range stmts {
			if err := txn.Execute(ctx, s); err != nil {
				_ = txn.Rollback(ctx)
				h.logger.Errorf("%s: handle transaction rolled back: %v", h.name, err)
				h.metrics.IncrCounter("handle_transaction_failed", nil)
				return
			}
			for _, t := range perStmtTables[i] {
				union[t] = struct{}{}
			}
		}
		if err := txn.Commit(ctx); err != nil {
			h.logger.Errorf("%s: handle transaction commit failed: %v", h.name, err)
			h.metrics.IncrCounter("handle_transaction_failed", nil)
			return
		}
		h.metrics.IncrCounter("handle_transaction_succeeded", nil)
		h.announce(setToSlice(union))
	}()
}

func (h *Handle) announce(tables []string) {
	if len(tables) == 0 {
		return
	}
	select {
	case h.busSender <- tables:
	default:
		h.logger.Warnf("%s: change bus channel full, dropping announcement for %v", h.name, tables)
	}
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}
