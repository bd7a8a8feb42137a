// Package monitor tracks the physical monitor layout of the X screen.
//
// The layout is published as immutable, versioned snapshots. Readers may hold
// a snapshot for as long as they like without locking; a refresh replaces the
// whole snapshot and never edits a published one.
package monitor

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/WallSync/internal/logger"
)

// ErrQuery is returned when the display server cannot report its monitors.
var ErrQuery = errors.New("monitor query failed")

// Monitor is one display region in global screen coordinates.
type Monitor struct {
	Index  int `json:"index" yaml:"index"`
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect returns the monitor region as an image rectangle.
func (m Monitor) Rect() image.Rectangle {
	return image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
}

func (m Monitor) String() string {
	return fmt.Sprintf("#%d %dx%d+%d+%d", m.Index, m.Width, m.Height, m.X, m.Y)
}

// Snapshot is the monitor layout as of one refresh.
type Snapshot struct {
	Version  uint64    `json:"version" yaml:"version"`
	Monitors []Monitor `json:"monitors" yaml:"monitors"`
}

// Len returns the number of monitors in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Monitors)
}

// Monitor looks up a monitor by index.
func (s *Snapshot) Monitor(index int) (Monitor, bool) {
	if s == nil || index < 0 || index >= len(s.Monitors) {
		return Monitor{}, false
	}
	return s.Monitors[index], true
}

// Querier reports the raw screen rectangles in enumeration order.
type Querier interface {
	QueryMonitors() ([]image.Rectangle, error)
}

// Provider owns the current snapshot and rebuilds it on demand.
type Provider struct {
	querier Querier

	mu        sync.Mutex // serialises refreshes
	current   atomic.Pointer[Snapshot]
	listeners []func(*Snapshot)
}

// NewProvider creates a provider with an empty snapshot. Call Refresh before
// relying on Snapshot.
func NewProvider(q Querier) *Provider {
	p := &Provider{querier: q}
	p.current.Store(&Snapshot{})
	return p
}

// Snapshot returns the most recently published layout.
func (p *Provider) Snapshot() *Snapshot {
	return p.current.Load()
}

// OnRefresh registers fn to run after every successful refresh, in
// registration order, with the newly published snapshot.
func (p *Provider) OnRefresh(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Refresh queries the display server and publishes a new snapshot. Indices
// in the new snapshot bear no relation to those of the previous one.
func (p *Provider) Refresh() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rects, err := p.querier.QueryMonitors()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	monitors := Build(rects)
	if len(monitors) == 0 {
		return nil, fmt.Errorf("%w: no usable screens reported", ErrQuery)
	}

	prev := p.current.Load()
	snap := &Snapshot{
		Version:  prev.Version + 1,
		Monitors: monitors,
	}
	p.current.Store(snap)

	log := logger.WithComponent("monitor")
	log.Info().
		Uint64("version", snap.Version).
		Int("count", len(monitors)).
		Msg("Monitor layout refreshed")
	for _, m := range monitors {
		log.Debug().Stringer("monitor", m).Msg("Monitor")
	}

	for _, fn := range p.listeners {
		fn(snap)
	}
	return snap, nil
}

// Build turns raw screen rectangles into indexed monitors. Empty rectangles
// are dropped and exact duplicates (mirrored outputs) collapse into the first
// occurrence, so indices stay contiguous.
func Build(rects []image.Rectangle) []Monitor {
	monitors := make([]Monitor, 0, len(rects))
	seen := make(map[image.Rectangle]bool, len(rects))
	for _, r := range rects {
		r = r.Canon()
		if r.Empty() || seen[r] {
			continue
		}
		seen[r] = true
		monitors = append(monitors, Monitor{
			Index:  len(monitors),
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
		})
	}
	return monitors
}
