// Package carrier holds the two background work units a Container
// wraps around a view: ExecuteCarrier runs writes against the engine
// and reports affected tables on the next tick; QueryCarrier runs the
// view's own SELECT and advances its update-state machine on each
// tick. Neither carrier blocks its caller, and results surface through
// Tick — except QueryCarrier.DirectQuery, which runs synchronously and
// returns its rows to the caller.
package carrier

import (
	"context"
	"sync"

	"github.com/siddontang/go-log/loggers"

	"github.com/tomellm/hermes/pkg/actor"
	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/metrics"
	"github.com/tomellm/hermes/pkg/tablescan"
)

// executeOutcome is what a background write reports back to Tick.
type executeOutcome struct {
	tables []string
	err    error
}

// ExecuteCarrier runs a view's writes against the engine in the
// background and, once a write lands, hands its affected tables to
// Tick for forwarding to the Change Bus. Nothing serializes the
// writer goroutines it spawns — Execute(A); Execute(B) issued back to
// back between ticks are both legitimately in flight at once — so
// every outcome is queued and Tick drains the whole backlog, never
// just the latest one.
type ExecuteCarrier struct {
	eng       engine.Engine
	allTables []string
	busSender chan<- []string
	metrics   metrics.Sink
	logger    loggers.Advanced
	name      string

	mu      sync.Mutex
	pending []executeOutcome
}

// NewExecuteCarrier constructs an ExecuteCarrier. busSender is the
// Change Bus's tables-changed channel.
func NewExecuteCarrier(eng engine.Engine, allTables []string, busSender chan<- []string, sink metrics.Sink, logger loggers.Advanced, name string) *ExecuteCarrier {
	return &ExecuteCarrier{
		eng:       eng,
		allTables: allTables,
		busSender: busSender,
		metrics:   sink,
		logger:    logger,
		name:      name,
	}
}

// Execute fires stmt in the background. Its outcome surfaces on the
// next Tick.
func (c *ExecuteCarrier) Execute(stmt engine.Statement) {
	tables := tablescan.Scan(c.allTables, stmt.SQL)
	c.logger.Infof("%s: carrier execute=%s", c.name, tablescan.Truncate(stmt.SQL, 500))
	go func() {
		err := c.eng.Execute(context.Background(), stmt)
		c.deliver(executeOutcome{tables: tables, err: err})
	}()
}

// ExecuteMany runs a caller-built transaction in the background. Every
// statement's tables are scanned up front, before the transaction
// opens, so the set of affected tables is deterministic regardless of
// how far the transaction gets before a failure.
func (c *ExecuteCarrier) ExecuteMany(build func(*engine.TransactionBuilder)) {
	b := &engine.TransactionBuilder{}
	build(b)
	stmts := b.Statements()
	perStmtTables := make([][]string, len(stmts))
	for i, s := range stmts {
		perStmtTables[i] = tablescan.Scan(c.allTables, s.SQL)
	}

	go func() {
		ctx := context.Background()
		txn, err := c.eng.BeginTx(ctx)
		if err != nil {
			c.deliver(executeOutcome{err: err})
			return
		}
		union := map[string]struct{}{}
		for i, s := range stmts {
			if err := txn.Execute(ctx, s); err != nil {
				_ = txn.Rollback(ctx)
				c.deliver(executeOutcome{err: err})
				return
			}
			for _, t := range perStmtTables[i] {
				union[t] = struct{}{}
			}
		}
		if err := txn.Commit(ctx); err != nil {
			c.deliver(executeOutcome{err: err})
			return
		}
		tables := make([]string, 0, len(union))
		for t := range union {
			tables = append(tables, t)
		}
		c.deliver(executeOutcome{tables: tables})
	}()
}

// deliver appends a finished write's outcome to the pending queue,
// for Tick to pick up — every write that lands gets forwarded, none
// are ever discarded in favor of a newer one.
func (c *ExecuteCarrier) deliver(o executeOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, o)
}

// Tick drains every write outcome queued since the last Tick, logging
// failures and forwarding each successful write's affected tables to
// the Change Bus in the order the writes landed. It never blocks.
func (c *ExecuteCarrier) Tick() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, o := range pending {
		if o.err != nil {
			c.logger.Errorf("%s: carrier execute failed: %v", c.name, o.err)
			c.metrics.IncrCounter("execute_carrier_failed", nil)
			continue
		}
		c.metrics.IncrCounter("execute_carrier_succeeded", nil)
		if len(o.tables) == 0 {
			continue
		}
		select {
		case c.busSender <- o.tables:
		default:
			c.logger.Warnf("%s: change bus channel full, dropping announcement for %v", c.name, o.tables)
		}
	}
}

// Handle returns a standalone, cloneable reference to the Change Bus
// sharing this carrier's engine and table list — for spawning
// ad-hoc writers that don't need a view of their own.
func (c *ExecuteCarrier) Handle() *actor.Handle {
	return actor.New(c.eng, c.allTables, c.busSender, c.metrics, c.logger, c.name)
}
