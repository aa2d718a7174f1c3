package messenger

import (
	"github.com/google/uuid"

	"github.com/tomellm/hermes/pkg/actor"
	"github.com/tomellm/hermes/pkg/carrier"
	"github.com/tomellm/hermes/pkg/container"
	"github.com/tomellm/hermes/pkg/engine"
)

// ContainerBuilder configures a view before it's built. Go has no
// generic methods, so the builder itself stays non-generic and the
// type parameter only appears on the package-level New function that
// consumes it.
type ContainerBuilder struct {
	name             string
	stmt             *engine.Statement
	automaticRequery bool
	writable         bool
}

// NewBuilder returns an unconfigured ContainerBuilder.
func NewBuilder() *ContainerBuilder {
	return &ContainerBuilder{}
}

// Name sets the view's name, used in logs and metrics. If left unset,
// New generates a random one.
func (b *ContainerBuilder) Name(name string) *ContainerBuilder {
	b.name = name
	return b
}

// StoredQuery sets the view's canonical query.
func (b *ContainerBuilder) StoredQuery(stmt engine.Statement) *ContainerBuilder {
	b.stmt = &stmt
	return b
}

// AutomaticRequery enables re-running the stored query whenever an
// invalidation marks the view ShouldRefresh, without the caller
// having to call Requery itself.
func (b *ContainerBuilder) AutomaticRequery(v bool) *ContainerBuilder {
	b.automaticRequery = v
	return b
}

// Writable attaches an ExecuteCarrier to the built view, so it can run
// writes and hand out a Handle.
func (b *ContainerBuilder) Writable(v bool) *ContainerBuilder {
	b.writable = v
	return b
}

// New builds a Container[T] from b, wiring its writes (if Writable)
// back into m's table-change stream. If b has a stored query, the view
// registers with m's Change Bus and fires that query now; otherwise it
// registers on its first StoredQuery call. project decodes each
// engine.Row the view's query returns into the caller's domain type.
func New[T any](m *Messenger, b *ContainerBuilder, project func(engine.Row) T) *container.Container[T] {
	name := b.name
	if name == "" {
		name = uuid.NewString()
	}

	query := carrier.NewQueryCarrier(m.eng, m.allTables, m.newRegistrations, m.metrics, m.logger, name)

	var exec *carrier.ExecuteCarrier
	if b.writable {
		exec = carrier.NewExecuteCarrier(m.eng, m.allTables, m.tablesChanged, m.metrics, m.logger, name)
	}

	c := container.New[T](query, exec, project, b.automaticRequery)
	if b.stmt != nil {
		c.StoredQuery(*b.stmt)
	}
	return c
}

// NewHandle returns a standalone write-only Handle announcing straight
// into m's Change Bus, for ad hoc writers that don't need a view of
// their own.
func NewHandle(m *Messenger, name string) *actor.Handle {
	if name == "" {
		name = uuid.NewString()
	}
	return actor.New(m.eng, m.allTables, m.tablesChanged, m.metrics, m.logger, name)
}
