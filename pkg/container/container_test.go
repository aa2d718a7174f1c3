package container_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomellm/hermes/internal/testsupport"
	"github.com/tomellm/hermes/pkg/carrier"
	"github.com/tomellm/hermes/pkg/container"
	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/metrics"
)

type item struct {
	ID   int64
	Name string
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "condition not met in time")
}

func project(r engine.Row) item {
	return item{ID: r["id"].(int64), Name: r["name"].(string)}
}

func TestContainerTickProjectsRowsIntoData(t *testing.T) {
	fake := testsupport.New(`"items"`)
	fake.QueryFunc = func(context.Context, engine.Statement) ([]engine.Row, error) {
		return []engine.Row{{"id": int64(1), "name": "widget"}}, nil
	}
	regCh := make(chan *carrier.Registration, 1)
	qc := carrier.NewQueryCarrier(fake, fake.Tables, regCh, metrics.NoopSink{}, newTestLogger(), "items-view")
	c := container.New[item](qc, nil, project, true)
	c.StoredQuery(engine.Statement{SQL: `SELECT id, name FROM "items"`})

	waitFor(t, func() bool {
		c.Tick()
		return c.HasChanged()
	})
	assert.Equal(t, []item{{ID: 1, Name: "widget"}}, c.Data())
	c.SetViewed()
	assert.False(t, c.HasChanged())
}

func TestContainerSortByIsIndependentOfQueryOrder(t *testing.T) {
	fake := testsupport.New(`"items"`)
	fake.QueryFunc = func(context.Context, engine.Statement) ([]engine.Row, error) {
		return []engine.Row{
			{"id": int64(2), "name": "b"},
			{"id": int64(1), "name": "a"},
		}, nil
	}
	regCh := make(chan *carrier.Registration, 1)
	qc := carrier.NewQueryCarrier(fake, fake.Tables, regCh, metrics.NoopSink{}, newTestLogger(), "items-view")
	c := container.New[item](qc, nil, project, false)
	c.StoredQuery(engine.Statement{SQL: `SELECT id, name FROM "items"`})
	waitFor(t, func() bool {
		c.Tick()
		return c.HasChanged()
	})

	c.SortBy(func(a, b item) bool { return a.ID < b.ID })
	sorted := c.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, int64(1), sorted[0].ID)
	assert.Equal(t, int64(2), sorted[1].ID)
	assert.Equal(t, int64(2), c.Data()[0].ID, "query order must be untouched by SortBy")
}

func TestContainerAutomaticRequeryFiresOnInvalidation(t *testing.T) {
	fake := testsupport.New(`"items"`)
	calls := 0
	fake.QueryFunc = func(context.Context, engine.Statement) ([]engine.Row, error) {
		calls++
		return []engine.Row{{"id": int64(calls), "name": "x"}}, nil
	}
	regCh := make(chan *carrier.Registration, 1)
	qc := carrier.NewQueryCarrier(fake, fake.Tables, regCh, metrics.NoopSink{}, newTestLogger(), "items-view")
	c := container.New[item](qc, nil, project, true)
	c.StoredQuery(engine.Statement{SQL: `SELECT id, name FROM "items"`})
	reg := <-regCh

	waitFor(t, func() bool {
		c.Tick()
		return c.HasChanged()
	})
	c.SetViewed()

	reg.Invalidations <- time.Now()
	waitFor(t, func() bool {
		c.Tick()
		return c.HasChanged()
	})
	assert.GreaterOrEqual(t, calls, 2, "an invalidation must drive a second requery without caller intervention")
}

func TestContainerWriteOnlyWithoutExecCarrierIsNoop(t *testing.T) {
	fake := testsupport.New(`"items"`)
	regCh := make(chan *carrier.Registration, 1)
	qc := carrier.NewQueryCarrier(fake, fake.Tables, regCh, metrics.NoopSink{}, newTestLogger(), "items-view")
	c := container.New[item](qc, nil, project, false)

	assert.Nil(t, c.Handle())
	c.Execute(engine.Statement{SQL: `INSERT INTO "items" (name) VALUES (?)`})
	assert.Empty(t, fake.ExecLog())
}

func TestContainerCloseClosesRegistration(t *testing.T) {
	fake := testsupport.New(`"items"`)
	regCh := make(chan *carrier.Registration, 1)
	qc := carrier.NewQueryCarrier(fake, fake.Tables, regCh, metrics.NoopSink{}, newTestLogger(), "items-view")
	c := container.New[item](qc, nil, project, false)
	c.StoredQuery(engine.Statement{SQL: `SELECT id, name FROM "items"`})
	reg := <-regCh

	c.Close()
	select {
	case <-reg.Closed:
	default:
		t.Fatal("Close must close the registration's Closed channel")
	}
}
