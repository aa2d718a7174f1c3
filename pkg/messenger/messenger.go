// Package messenger implements the Change Bus: the single point that
// fans write-side table changes out to every view interested in them,
// and accepts new view registrations as they're built. A Messenger
// does all of this from one goroutine's Tick — no locking is needed
// on its own state, since nothing but Tick ever touches it.
package messenger

import (
	"context"
	"time"

	"github.com/siddontang/go-log/loggers"

	"github.com/tomellm/hermes/pkg/carrier"
	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/metrics"
)

const (
	tablesChangedBufferSize   = 64
	newRegistrationBufferSize = 16
)

// Messenger is the Change Bus. New snapshots the schema once, via
// Engine.AllTableNames; Tick is the only method that should be called
// after that, on a loop, to drive the whole reactivity engine forward.
type Messenger struct {
	eng       engine.Engine
	allTables []string
	metrics   metrics.Sink
	logger    loggers.Advanced

	tablesChanged    chan []string
	newRegistrations chan *carrier.Registration

	regs []*carrier.Registration
}

// New discovers the engine's full table list and returns a ready
// Messenger. Call Tick on it repeatedly to drive invalidations.
func New(ctx context.Context, eng engine.Engine, sink metrics.Sink, logger loggers.Advanced) (*Messenger, error) {
	tables, err := eng.AllTableNames(ctx)
	if err != nil {
		return nil, err
	}
	return &Messenger{
		eng:              eng,
		allTables:        tables,
		metrics:          sink,
		logger:           logger,
		tablesChanged:    make(chan []string, tablesChangedBufferSize),
		newRegistrations: make(chan *carrier.Registration, newRegistrationBufferSize),
	}, nil
}

// AllTables returns the schema snapshot taken at New.
func (m *Messenger) AllTables() []string {
	return m.allTables
}

// Tick runs one full pass of the bus: accept new registrations, drain
// table-change announcements, fan invalidations out to every
// registration whose declared interest intersects the changed set,
// and prune any registration that has since been Closed. It never
// blocks.
func (m *Messenger) Tick() {
	m.acceptRegistrations()
	m.drainInterestUpdates()
	changed := m.drainTableChanges()
	if len(changed) > 0 {
		m.logger.Infof("change bus: routing changes to %d table(s)", len(changed))
		now := time.Now()
		for _, reg := range m.regs {
			if !interestIntersects(reg.Tables, changed) {
				continue
			}
			select {
			case reg.Invalidations <- now:
			default:
				m.logger.Warnf("change bus: invalidation channel full, dropping invalidation")
				m.metrics.IncrCounter("messenger_invalidation_dropped", nil)
			}
		}
	}
	m.pruneClosed()
}

func (m *Messenger) acceptRegistrations() {
	for {
		select {
		case reg := <-m.newRegistrations:
			m.regs = append(m.regs, reg)
		default:
			return
		}
	}
}

// drainInterestUpdates non-blockingly drains each registration's
// InterestUpdates channel and swaps the latest value in for its Tables
// (§4.6 step 1: "last-write-wins"). A view whose stored query changes
// tables between resolutions is routed on the new set from its very
// next successful Tick onward.
func (m *Messenger) drainInterestUpdates() {
	for _, reg := range m.regs {
		draining := true
		for draining {
			select {
			case tables := <-reg.InterestUpdates:
				reg.Tables = tables
			default:
				draining = false
			}
		}
	}
}

func (m *Messenger) drainTableChanges() map[string]struct{} {
	changed := map[string]struct{}{}
	for {
		select {
		case tables := <-m.tablesChanged:
			for _, t := range tables {
				changed[t] = struct{}{}
			}
		default:
			return changed
		}
	}
}

func (m *Messenger) pruneClosed() {
	kept := m.regs[:0]
	for _, reg := range m.regs {
		select {
		case <-reg.Closed:
			continue
		default:
			kept = append(kept, reg)
		}
	}
	m.regs = kept
}

func interestIntersects(interest []string, changed map[string]struct{}) bool {
	for _, t := range interest {
		if _, ok := changed[t]; ok {
			return true
		}
	}
	return false
}
