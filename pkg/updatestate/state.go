// Package updatestate implements the per-view finite automaton that
// resolves interleaved "start refresh" / "done" / "table changed" events
// into exactly one of three states: up to date, updating, or should
// update. It is a pure function of (state, event) -> state with no I/O,
// so it can be reasoned about and tested independently of channels,
// goroutines, or the database engine.
package updatestate

import "time"

// Kind classifies the current state of a view.
type Kind int

const (
	// UpToDate means no pending work and no known invalidation.
	UpToDate Kind = iota
	// Updating means a refresh is in flight.
	Updating
	// ShouldUpdate means no refresh is in flight but an invalidation is
	// pending; the next tick should reissue the stored query.
	ShouldUpdate
)

func (k Kind) String() string {
	switch k {
	case UpToDate:
		return "UpToDate"
	case Updating:
		return "Updating"
	case ShouldUpdate:
		return "ShouldUpdate"
	default:
		return "Unknown"
	}
}

// Machine is the update-state automaton for a single view. It is not
// safe for concurrent use; callers (carrier.QueryCarrier) only ever
// touch it from the view's own single foreground thread of control.
type Machine struct {
	kind          Kind
	startedAt     time.Time
	backToBack    time.Time
	hasBackToBack bool
}

// New returns a machine in the UpToDate state.
func New() *Machine {
	return &Machine{kind: UpToDate}
}

// Kind reports the machine's current classification.
func (m *Machine) Kind() Kind { return m.kind }

// StartedAt reports the start time of the in-flight refresh. Only
// meaningful when Kind() == Updating.
func (m *Machine) StartedAt() time.Time { return m.startedAt }

// BackToBack reports the most recent invalidation observed during the
// in-flight refresh, and whether one was observed at all. Only
// meaningful when Kind() == Updating.
func (m *Machine) BackToBack() (time.Time, bool) { return m.backToBack, m.hasBackToBack }

// Start records that a refresh beginning at t has been submitted.
func (m *Machine) Start(t time.Time) {
	switch m.kind {
	case UpToDate, ShouldUpdate:
		m.kind = Updating
		m.startedAt = t
		m.hasBackToBack = false
	case Updating:
		if m.hasBackToBack {
			if t.Before(m.backToBack) {
				m.startedAt = m.backToBack
			} else {
				m.startedAt = t
			}
			m.hasBackToBack = false
		} else if t.After(m.startedAt) {
			m.startedAt = t
		}
	}
}

// Invalidate records that some dependency of this view changed at t.
func (m *Machine) Invalidate(t time.Time) {
	switch m.kind {
	case UpToDate, ShouldUpdate:
		m.kind = ShouldUpdate
	case Updating:
		// Strict: an invalidation whose timestamp equals startedAt is
		// considered not satisfied by the in-flight refresh, so it is
		// recorded rather than dropped. Only a invalidation that
		// strictly precedes startedAt is stale enough to ignore.
		if m.startedAt.After(t) {
			return
		}
		if !m.hasBackToBack || t.After(m.backToBack) {
			m.backToBack = t
			m.hasBackToBack = true
		}
	}
}

// Done records that the refresh which started at d has completed,
// successfully or not — callers decide separately whether to apply the
// result's data, but the state machine advances unconditionally so a
// failed refresh never leaves the view stuck in Updating.
func (m *Machine) Done(d time.Time) {
	if m.kind != Updating {
		return
	}
	// Strict: d == startedAt still counts as resolving this refresh.
	if d.Before(m.startedAt) {
		return
	}
	if m.hasBackToBack {
		m.kind = ShouldUpdate
	} else {
		m.kind = UpToDate
	}
	m.hasBackToBack = false
}
