package carrier

import (
	"context"
	"sync"
	"time"

	"github.com/siddontang/go-log/loggers"

	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/metrics"
	"github.com/tomellm/hermes/pkg/tablescan"
	"github.com/tomellm/hermes/pkg/updatestate"
)

// InvalidationBufferSize is the capacity of every Registration's
// invalidation channel; it is not configurable.
const InvalidationBufferSize = 10

// Registration is what a QueryCarrier hands the Change Bus once, on
// its first StoredQuery call, with Tables still empty. Invalidations
// is owned by the carrier; the Bus only ever sends on it. Closed is
// closed when the view is torn down, which the Bus detects with a
// non-blocking receive during its own tick and uses to prune the
// registration — the Go stand-in for the Drop-triggered deregistration
// the original relied on. InterestUpdates carries a fresh interest set
// after every successful resolution (§4.3 step 2); the Bus drains it
// non-blockingly on every tick, last write wins, and swaps it in for
// Tables (§4.6 step 1).
type Registration struct {
	Tables          []string
	Invalidations   chan time.Time
	Closed          <-chan struct{}
	InterestUpdates <-chan []string
}

type queryOutcome struct {
	startedAt time.Time
	rows      []engine.Row
	tables    []string
	err       error
}

// QueryCarrier runs a view's SELECT in the background and drives its
// update-state machine from the results and from invalidations pushed
// by the Change Bus. Apart from DirectQuery, which waits on the engine,
// it never blocks its caller: every method either fires a goroutine or
// drains what's already arrived.
//
// Query/Requery/Tick are all foreground methods, called from the one
// goroutine that drives this view — nothing here needs a mutex. Each
// Query call allocates its own one-shot pending channel and the
// background goroutine it spawns closes over that specific channel,
// never a shared field: a superseded call's late send lands in a
// channel nobody reads again instead of clobbering the live one.
type QueryCarrier struct {
	eng              engine.Engine
	allTables        []string
	newRegistrations chan<- *Registration
	metrics          metrics.Sink
	logger           loggers.Advanced
	name             string

	machine         *updatestate.Machine
	invalidations   chan time.Time
	closeCh         chan struct{}
	closeOnce       sync.Once
	registered      bool
	storedStmt      *engine.Statement
	interest        []string
	interestUpdates chan []string

	pending chan queryOutcome
}

// NewQueryCarrier constructs a QueryCarrier. newRegistrations is the
// Change Bus's registration-intake channel.
func NewQueryCarrier(eng engine.Engine, allTables []string, newRegistrations chan<- *Registration, sink metrics.Sink, logger loggers.Advanced, name string) *QueryCarrier {
	return &QueryCarrier{
		eng:              eng,
		allTables:        allTables,
		newRegistrations: newRegistrations,
		metrics:          sink,
		logger:           logger,
		name:             name,
		machine:          updatestate.New(),
		invalidations:    make(chan time.Time, InvalidationBufferSize),
		closeCh:          make(chan struct{}),
		interestUpdates:  make(chan []string, 1),
	}
}

// Close tears the view down: the Change Bus will prune its
// registration on its next tick and stop sending invalidations. Safe
// to call more than once.
func (c *QueryCarrier) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// StoredQuery sets stmt as the view's canonical query and fires an
// initial Query. The Change Bus registration happens once, on the
// first call; its interest starts out empty (matching every other
// view before its first successful resolution) and is only ever
// advanced by Tick, over InterestUpdates, once that resolution lands —
// StoredQuery itself never touches the interest set.
func (c *QueryCarrier) StoredQuery(stmt engine.Statement) {
	c.storedStmt = &stmt
	if !c.registered {
		c.registered = true
		reg := &Registration{
			Tables:          nil,
			Invalidations:   c.invalidations,
			Closed:          c.closeCh,
			InterestUpdates: c.interestUpdates,
		}
		select {
		case c.newRegistrations <- reg:
		default:
			c.logger.Warnf("%s: change bus registration channel full, dropping registration", c.name)
		}
	}
	c.Requery()
}

// Query runs stmt once in the background, advancing the update-state
// machine the same way an automatic Requery would. Its own scanned
// tables are reported back via Tick but do not change the carrier's
// registered interest until that resolution succeeds.
//
// A fresh one-shot channel is allocated for this call and stashed as
// c.pending; the spawned goroutine closes over that local channel, not
// the field. If a later Query call replaces c.pending before this one
// lands, this call's eventual send goes into the orphaned channel it
// captured — nobody reads it again, so it can never clobber the
// result a newer call is waiting on.
func (c *QueryCarrier) Query(stmt engine.Statement) {
	startedAt := time.Now()
	c.machine.Start(startedAt)
	tables := tablescan.Scan(c.allTables, stmt.SQL)
	c.logger.Infof("%s: carrier query=%s", c.name, tablescan.Truncate(stmt.SQL, 500))

	ch := make(chan queryOutcome, 1)
	c.pending = ch
	go func() {
		rows, err := c.eng.Query(context.Background(), stmt)
		ch <- queryOutcome{startedAt: startedAt, rows: rows, tables: tables, err: err}
	}()
}

// Requery re-issues the stored query, if one has been set. It is what
// a Container calls when ShouldRefresh reports true.
func (c *QueryCarrier) Requery() {
	if c.storedStmt == nil {
		return
	}
	c.Query(*c.storedStmt)
}

// DirectQuery runs stmt synchronously against the engine and returns
// its result immediately, bypassing the update-state machine and the
// Change Bus entirely. Nothing about it is cached or revisited on a
// later tick — it exists for one-off reads that don't belong to any
// declared view.
func (c *QueryCarrier) DirectQuery(ctx context.Context, stmt engine.Statement) ([]engine.Row, error) {
	return c.eng.Query(ctx, stmt)
}

// ShouldRefresh reports whether the view has pending invalidations
// that haven't yet been picked up by a Query/Requery.
func (c *QueryCarrier) ShouldRefresh() bool {
	return c.machine.Kind() == updatestate.ShouldUpdate
}

// Interest returns the tables currently registered with the Change
// Bus on this carrier's behalf.
func (c *QueryCarrier) Interest() []string {
	return c.interest
}

// publishInterest drops any interest update this carrier already
// queued and not yet picked up, then queues the fresh one — last write
// wins, matching the Bus's own drain semantics on the other end.
func (c *QueryCarrier) publishInterest(tables []string) {
	select {
	case <-c.interestUpdates:
	default:
	}
	c.interestUpdates <- tables
}

func (c *QueryCarrier) drainInvalidations() {
	for {
		select {
		case t := <-c.invalidations:
			c.machine.Invalidate(t)
		default:
			return
		}
	}
}

// Tick drains pending invalidations into the state machine, then
// checks the most recent Query's pending channel for an outcome. It
// returns the outcome's rows and tables and true only when a query
// both succeeded and was not superseded by a later Start. A failed
// outcome still advances the machine (so a back-to-back invalidation
// that arrived during the failed query is not lost) but yields
// ok=false; a superseded outcome is passed to Done too, which ignores
// it because it started before the machine's current refresh, and
// also yields ok=false.
//
// Because each Query call owns a fresh channel, an outcome surfacing
// here is always the one c.pending currently points at — the most
// recently started query — never a stale call's late arrival; a
// superseded call's send goes to a channel this method no longer
// holds a reference to.
func (c *QueryCarrier) Tick() (rows []engine.Row, tables []string, ok bool) {
	c.drainInvalidations()
	select {
	case o := <-c.pending:
		stale := o.startedAt.Before(c.machine.StartedAt())
		c.machine.Done(o.startedAt)
		if o.err != nil {
			c.logger.Errorf("%s: carrier query failed: %v", c.name, o.err)
			c.metrics.IncrCounter("query_carrier_failed", nil)
			return nil, nil, false
		}
		if stale {
			c.metrics.IncrCounter("query_carrier_superseded", nil)
			return nil, nil, false
		}
		c.metrics.IncrCounter("query_carrier_succeeded", nil)
		c.interest = o.tables
		c.publishInterest(o.tables)
		return o.rows, o.tables, true
	default:
		return nil, nil, false
	}
}
