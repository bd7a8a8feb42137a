package monitor

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	rects []image.Rectangle
	err   error
}

func (f *fakeQuerier) QueryMonitors() ([]image.Rectangle, error) {
	return f.rects, f.err
}

func Test_Build(t *testing.T) {
	got := Build([]image.Rectangle{
		image.Rect(0, 0, 1920, 1080),
		image.Rect(0, 0, 1920, 1080), // mirrored
		image.Rect(1920, 0, 1920, 1080),
		image.Rect(1920, 0, 3200, 1440),
	})

	assert.Equal(t, []Monitor{
		{Index: 0, X: 0, Y: 0, Width: 1920, Height: 1080},
		{Index: 1, X: 1920, Y: 0, Width: 1280, Height: 1440},
	}, got)
}

func Test_ProviderRefresh(t *testing.T) {
	q := &fakeQuerier{rects: []image.Rectangle{
		image.Rect(0, 0, 1920, 1080),
		image.Rect(1920, 0, 3840, 1080),
	}}
	p := NewProvider(q)
	assert.Equal(t, 0, p.Snapshot().Len())

	var notified []*Snapshot
	p.OnRefresh(func(s *Snapshot) { notified = append(notified, s) })

	first, err := p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, 2, first.Len())

	m, ok := first.Monitor(1)
	require.True(t, ok)
	assert.Equal(t, image.Rect(1920, 0, 3840, 1080), m.Rect())

	q.rects = q.rects[:1]
	second, err := p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)
	assert.Same(t, second, p.Snapshot())

	// The old snapshot is untouched.
	assert.Equal(t, 2, first.Len())
	_, ok = second.Monitor(1)
	assert.False(t, ok)

	assert.Equal(t, []*Snapshot{first, second}, notified)
}

func Test_ProviderRefreshError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("xinerama: connection closed")}
	p := NewProvider(q)

	_, err := p.Refresh()
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, uint64(0), p.Snapshot().Version)

	q.err = nil
	_, err = p.Refresh()
	assert.ErrorIs(t, err, ErrQuery)
}

func Test_SnapshotMonitorBounds(t *testing.T) {
	var nilSnap *Snapshot
	_, ok := nilSnap.Monitor(0)
	assert.False(t, ok)

	s := &Snapshot{Monitors: Build([]image.Rectangle{image.Rect(0, 0, 10, 10)})}
	_, ok = s.Monitor(-1)
	assert.False(t, ok)
	_, ok = s.Monitor(0)
	assert.True(t, ok)
}
