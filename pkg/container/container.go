package container

import (
	"github.com/tomellm/hermes/pkg/actor"
	"github.com/tomellm/hermes/pkg/carrier"
	"github.com/tomellm/hermes/pkg/engine"
)

// Container is the View Container: the public handle a caller
// registers a view through. It owns a QueryCarrier (always) and an
// ExecuteCarrier (only if the view was built Writable), projecting
// each fetched engine.Row into the caller's domain type T. Nothing on
// Container blocks — state only ever advances on Tick.
type Container[T any] struct {
	query            *carrier.QueryCarrier
	exec             *carrier.ExecuteCarrier
	data             *Data[T]
	project          func(engine.Row) T
	automaticRequery bool
}

// New constructs a Container. exec may be nil for a read-only view.
func New[T any](query *carrier.QueryCarrier, exec *carrier.ExecuteCarrier, project func(engine.Row) T, automaticRequery bool) *Container[T] {
	return &Container[T]{
		query:            query,
		exec:             exec,
		data:             NewData[T](),
		project:          project,
		automaticRequery: automaticRequery,
	}
}

// Tick drains this view's carriers and, if automatic requery is
// enabled and the view has pending invalidations, fires the next
// requery. Never blocks.
func (c *Container[T]) Tick() {
	if c.exec != nil {
		c.exec.Tick()
	}
	if rows, _, ok := c.query.Tick(); ok {
		projected := make([]T, len(rows))
		for i, r := range rows {
			projected[i] = c.project(r)
		}
		c.data.Set(projected)
	}
	if c.automaticRequery && c.query.ShouldRefresh() {
		c.query.Requery()
	}
}

// StoredQuery sets the view's canonical query, used for both the
// initial fetch and every automatic requery.
func (c *Container[T]) StoredQuery(stmt engine.Statement) {
	c.query.StoredQuery(stmt)
}

// Query runs an ad hoc one-off query against the view's carrier,
// projecting its result into the same data buffer on the next Tick
// where it succeeds.
func (c *Container[T]) Query(stmt engine.Statement) {
	c.query.Query(stmt)
}

// Requery re-issues the stored query immediately, regardless of
// whether the view currently ShouldRefresh.
func (c *Container[T]) Requery() {
	c.query.Requery()
}

// ShouldRefresh reports whether an invalidation is pending that a
// Requery hasn't yet picked up.
func (c *Container[T]) ShouldRefresh() bool {
	return c.query.ShouldRefresh()
}

// Interest returns the tables this view is currently registered with
// the Change Bus as depending on, derived from its last successful
// resolution.
func (c *Container[T]) Interest() []string {
	return c.query.Interest()
}

// Execute fires a write through this view's ExecuteCarrier. It is a
// no-op if the view was not built Writable.
func (c *Container[T]) Execute(stmt engine.Statement) {
	if c.exec != nil {
		c.exec.Execute(stmt)
	}
}

// ExecuteMany runs a caller-built transaction through this view's
// ExecuteCarrier. It is a no-op if the view was not built Writable.
func (c *Container[T]) ExecuteMany(build func(*engine.TransactionBuilder)) {
	if c.exec != nil {
		c.exec.ExecuteMany(build)
	}
}

// Handle returns a standalone write reference sharing this view's
// engine and table list, or nil if the view was not built Writable.
func (c *Container[T]) Handle() *actor.Handle {
	if c.exec == nil {
		return nil
	}
	return c.exec.Handle()
}

// Data returns the buffered rows in query order.
func (c *Container[T]) Data() []T {
	return c.data.Rows()
}

// Sorted returns the buffered rows in the order installed by SortBy.
func (c *Container[T]) Sorted() []T {
	return c.data.Sorted()
}

// SortBy installs a comparator for Sorted, independent of how rows
// arrived from the database.
func (c *Container[T]) SortBy(less func(a, b T) bool) {
	c.data.SortBy(less)
}

// HasChanged reports whether the buffer changed since the last
// SetViewed call.
func (c *Container[T]) HasChanged() bool {
	return c.data.HasChanged()
}

// SetViewed clears the changed flag, typically called by a UI layer
// right after it redraws from Data/Sorted.
func (c *Container[T]) SetViewed() {
	c.data.SetViewed()
}

// Close tears the view down: the Change Bus prunes its registration
// and stops sending invalidations on its next tick.
func (c *Container[T]) Close() {
	c.query.Close()
}
