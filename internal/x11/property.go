package x11

import (
	"errors"
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// ErrNoWorkspaceProperty is returned when neither the per-monitor property
// nor the _NET_CURRENT_DESKTOP fallback is set on the root window.
var ErrNoWorkspaceProperty = errors.New("no workspace property on root window")

// maxCardinals bounds a property read; nobody has this many monitors.
const maxCardinals = 64

// Workspaces reads the active workspace of every monitor from the root
// window.
func (c *Conn) Workspaces() ([]uint32, error) {
	ws, err := c.cardinals(c.workspaceAtom, maxCardinals)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.opts.WorkspaceProperty, err)
	}
	if len(ws) > 0 {
		return ws, nil
	}

	if !c.opts.FallbackCurrentDesktop {
		return nil, ErrNoWorkspaceProperty
	}

	desk, err := c.cardinals(c.currentDesktopAtom, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", currentDesktopProperty, err)
	}
	if len(desk) == 0 {
		return nil, ErrNoWorkspaceProperty
	}

	c.mu.Lock()
	n := c.monitorCount
	c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	return broadcast(desk[0], n), nil
}

// cardinals reads a 32-bit CARDINAL list property from the root window. An
// unset property or one of another type yields an empty slice.
func (c *Conn) cardinals(atom xproto.Atom, length uint32) ([]uint32, error) {
	reply, err := xproto.GetProperty(
		c.conn,
		false,
		c.root,
		atom,
		xproto.AtomCardinal,
		0,
		length,
	).Reply()
	if err != nil {
		return nil, err
	}
	if reply.Format != 32 || reply.Type != xproto.AtomCardinal {
		return nil, nil
	}
	return decodeCardinals(reply.Value, reply.ValueLen), nil
}

func decodeCardinals(value []byte, n uint32) []uint32 {
	if int(n)*4 > len(value) {
		n = uint32(len(value) / 4)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = xgb.Get32(value[i*4:])
	}
	return out
}

func broadcast(v uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (c *Conn) rootGeometry() (image.Rectangle, error) {
	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(c.root)).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("root geometry: %w", err)
	}
	return image.Rect(0, 0, int(geom.Width), int(geom.Height)), nil
}
