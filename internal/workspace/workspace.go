// Package workspace reports which virtual workspace is active on each
// monitor, blocking until that changes.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
)

var (
	// ErrConnectionLost means the display connection closed underneath the
	// monitor. It is fatal: no further changes will ever be reported.
	ErrConnectionLost = errors.New("display connection lost")

	// ErrCanceled is returned by WaitForChange when the caller's context is
	// done or the monitor was closed.
	ErrCanceled = errors.New("wait for workspace change canceled")
)

// EventKind classifies notifications from the display server.
type EventKind int

const (
	// EventWorkspace: the active-workspace property may have changed.
	EventWorkspace EventKind = iota
	// EventTopology: monitors were added, removed or resized.
	EventTopology
)

// Event is a raw notification. It carries no payload; the monitor reads
// the settled state itself once it wakes.
type Event struct {
	Kind EventKind
}

// Source is the display-server side of the monitor.
type Source interface {
	// Events delivers notifications and is closed when the connection dies.
	Events() <-chan Event
	// Workspaces reads the active workspace of each monitor, in monitor
	// index order.
	Workspaces() ([]uint32, error)
}

// Assignment pairs a monitor with its active workspace.
type Assignment struct {
	Monitor   int    `json:"monitor" yaml:"monitor"`
	Workspace uint32 `json:"workspace" yaml:"workspace"`
}

// State is the position of the monitor in its wait cycle.
type State int32

const (
	Idle State = iota
	Blocked
	ChangeReady
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Blocked:
		return "blocked"
	case ChangeReady:
		return "change-ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Monitor turns the notification stream into settled per-monitor snapshots.
// Notifications that arrive while nobody is waiting are folded into a single
// pending wake-up, so a burst of switches yields one report of the final
// state.
type Monitor struct {
	src      Source
	geometry *monitor.Provider

	pending  chan struct{}
	topology atomic.Bool
	lost     chan struct{}
	done     chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	waitMu sync.Mutex // one waiter at a time
	mu     sync.Mutex
	last   []uint32
	state  atomic.Int32
}

// New creates a monitor. geometry, if non-nil, is refreshed whenever the
// source reports a topology change.
func New(src Source, geometry *monitor.Provider) *Monitor {
	return &Monitor{
		src:      src,
		geometry: geometry,
		pending:  make(chan struct{}, 1),
		lost:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins consuming the source's notifications. It is idempotent.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.pump()
	})
}

func (m *Monitor) pump() {
	log := logger.WithComponent("workspace")
	events := m.src.Events()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-events:
			if !ok {
				log.Warn().Msg("Display event stream closed")
				close(m.lost)
				return
			}
			if ev.Kind == EventTopology {
				m.topology.Store(true)
			}
			m.notify()
		}
	}
}

// notify records a pending change; the single-slot channel coalesces bursts.
func (m *Monitor) notify() {
	select {
	case m.pending <- struct{}{}:
	default:
	}
}

// State reports where the monitor is in its wait cycle.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}

// Close wakes any blocked WaitForChange with ErrCanceled and stops the
// pump. It does not close the source.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// Current reads the present assignment without waiting. The result becomes
// the baseline that the next WaitForChange compares against.
func (m *Monitor) Current() ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.read()
	if err != nil {
		return nil, err
	}
	m.last = ws
	return assignments(ws), nil
}

// WaitForChange blocks until the active workspace of at least one monitor
// differs from the last reported state, then returns the full assignment.
// It returns ErrCanceled when ctx is done or Close is called, and
// ErrConnectionLost when the display connection goes away.
func (m *Monitor) WaitForChange(ctx context.Context) ([]Assignment, error) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()

	log := logger.WithComponent("workspace")
	m.setState(Blocked)

	for {
		// Shutdown wins over a change that raced with it.
		select {
		case <-m.done:
			m.setState(Idle)
			return nil, ErrCanceled
		case <-ctx.Done():
			m.setState(Idle)
			return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		default:
		}

		select {
		case <-m.done:
			m.setState(Idle)
			return nil, ErrCanceled
		case <-ctx.Done():
			m.setState(Idle)
			return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		case <-m.lost:
			m.setState(Idle)
			return nil, ErrConnectionLost
		case <-m.pending:
		}

		m.setState(ChangeReady)
		result, changed, err := m.settle()
		if err != nil {
			m.setState(Idle)
			return nil, err
		}
		if !changed {
			log.Debug().Msg("Notification without workspace change")
			m.setState(Blocked)
			continue
		}

		m.setState(Idle)
		log.Debug().Interface("assignments", result).Msg("Workspace change")
		return result, nil
	}
}

func (m *Monitor) settle() ([]Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topology.Swap(false) {
		if m.geometry != nil {
			if _, err := m.geometry.Refresh(); err != nil {
				// Retry on the next wake-up; the old layout is stale.
				m.topology.Store(true)
				return nil, false, err
			}
		}
		// Indices refer to new monitors now; the next read always reports.
		m.last = nil
	}

	ws, err := m.read()
	if err != nil {
		return nil, false, err
	}
	if m.last != nil && slices.Equal(ws, m.last) {
		return nil, false, nil
	}
	m.last = ws
	return assignments(ws), true, nil
}

// read fetches the property and shapes it to one entry per known monitor.
// Monitors missing from the property read as workspace 0.
func (m *Monitor) read() ([]uint32, error) {
	raw, err := m.src.Workspaces()
	if err != nil {
		return nil, fmt.Errorf("failed to read workspaces: %w", err)
	}
	if m.geometry == nil {
		return raw, nil
	}
	n := m.geometry.Snapshot().Len()
	if n == 0 {
		return raw, nil
	}
	ws := make([]uint32, n)
	copy(ws, raw)
	return ws, nil
}

func assignments(ws []uint32) []Assignment {
	out := make([]Assignment, len(ws))
	for i, w := range ws {
		out[i] = Assignment{Monitor: i, Workspace: w}
	}
	return out
}
