package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
)

const (
	windowInstance = "desktop_window"
	windowClass    = "WallSync"
)

// desktopWindow is the _NET_WM_WINDOW_TYPE_DESKTOP window covering one
// monitor. Its background pixmap is the wallpaper.
type desktopWindow struct {
	id   xproto.Window
	rect image.Rectangle
}

func (w *desktopWindow) destroy(conn *xgb.Conn) {
	xproto.DestroyWindow(conn, w.id)
}

// Reconfigure makes the set of desktop windows match snap. Windows whose
// monitor kept its geometry are reused; the rest are recreated and start
// out black until the next Publish.
func (c *Conn) Reconfigure(snap *monitor.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for idx, w := range c.windows {
		m, ok := snap.Monitor(idx)
		if ok && m.Rect() == w.rect {
			continue
		}
		w.destroy(c.conn)
		delete(c.windows, idx)
	}

	for _, m := range snap.Monitors {
		if _, ok := c.windows[m.Index]; ok {
			continue
		}
		if _, err := c.createWindow(m); err != nil {
			return err
		}
	}
	c.conn.Sync()
	return nil
}

// Publish replaces the wallpaper of monitor m with frame. The frame is
// uploaded to an off-screen pixmap first and swapped in with one attribute
// change, so the monitor never shows a partly drawn image.
func (c *Conn) Publish(m monitor.Monitor, frame *image.RGBA) error {
	log := logger.WithMonitor("x11", m.Index)

	c.mu.Lock()
	defer c.mu.Unlock()

	size := frame.Bounds().Size()
	if size.X == 0 || size.Y == 0 || size.X != m.Width || size.Y != m.Height {
		return fmt.Errorf("frame size %dx%d does not match monitor %s", size.X, size.Y, m)
	}

	w, ok := c.windows[m.Index]
	if !ok || w.rect != m.Rect() {
		if ok {
			w.destroy(c.conn)
			delete(c.windows, m.Index)
		}
		var err error
		if w, err = c.createWindow(m); err != nil {
			return err
		}
	}

	setup := xproto.Setup(c.conn)
	depth := c.screen.RootDepth
	format, err := formatFor(setup.PixmapFormats, depth)
	if err != nil {
		return err
	}
	data, stride, err := encodeZPixmap(frame, format)
	if err != nil {
		return err
	}

	pix, err := xproto.NewPixmapId(c.conn)
	if err != nil {
		return fmt.Errorf("failed to create pixmap ID: %w", err)
	}
	if err := xproto.CreatePixmapChecked(
		c.conn, depth, pix, xproto.Drawable(w.id), uint16(m.Width), uint16(m.Height),
	).Check(); err != nil {
		return fmt.Errorf("failed to create pixmap: %w", err)
	}
	// The window keeps its own reference to the background pixmap.
	defer xproto.FreePixmap(c.conn, pix)

	gc, err := xproto.NewGcontextId(c.conn)
	if err != nil {
		return fmt.Errorf("failed to create GC ID: %w", err)
	}
	if err := xproto.CreateGCChecked(c.conn, gc, xproto.Drawable(pix), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	defer xproto.FreeGC(c.conn, gc)

	rows := rowsPerRequest(stride, setup.MaximumRequestLength)
	strips := bands(data, stride, m.Height, rows)
	// Every strip is checked, but only after all of them are queued, so the
	// upload stays pipelined.
	cookies := make([]checker, 0, len(strips))
	for _, b := range strips {
		cookies = append(cookies, xproto.PutImageChecked(
			c.conn, xproto.ImageFormatZPixmap, xproto.Drawable(pix), gc,
			uint16(m.Width), uint16(b.rows), 0, int16(b.y), 0, depth, b.data,
		))
	}
	if err := checkAll(cookies); err != nil {
		return fmt.Errorf("failed to upload wallpaper: %w", err)
	}

	if err := xproto.ChangeWindowAttributesChecked(
		c.conn, w.id, xproto.CwBackPixmap, []uint32{uint32(pix)},
	).Check(); err != nil {
		return fmt.Errorf("failed to set background pixmap: %w", err)
	}
	xproto.ClearArea(c.conn, false, w.id, 0, 0, 0, 0)
	c.conn.Sync()

	log.Debug().
		Int("strips", len(strips)).
		Int("bytes", len(data)).
		Msg("Published wallpaper")
	return nil
}

// checker is a request cookie whose error can be waited for.
type checker interface {
	Check() error
}

// checkAll waits for every cookie and returns the first error. All cookies
// are drained even after a failure.
func checkAll(cookies []checker) error {
	var first error
	for _, c := range cookies {
		if err := c.Check(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// createWindow makes and maps the desktop window for m. c.mu must be held.
func (c *Conn) createWindow(m monitor.Monitor) (*desktopWindow, error) {
	log := logger.WithMonitor("x11", m.Index)

	id, err := xproto.NewWindowId(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	err = xproto.CreateWindowChecked(
		c.conn,
		c.screen.RootDepth,
		id,
		c.root,
		int16(m.X), int16(m.Y),
		uint16(m.Width), uint16(m.Height),
		0,
		xproto.WindowClassInputOutput,
		c.screen.RootVisual,
		xproto.CwBackPixel,
		[]uint32{c.screen.BlackPixel},
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create desktop window for %s: %w", m, err)
	}

	w := &desktopWindow{id: id, rect: m.Rect()}
	if err := c.decorate(id, m); err != nil {
		w.destroy(c.conn)
		return nil, err
	}

	xproto.MapWindow(c.conn, id)
	xproto.ConfigureWindow(c.conn, id, xproto.ConfigWindowStackMode, []uint32{xproto.StackModeBelow})

	c.windows[m.Index] = w
	log.Info().Uint32("window", uint32(id)).Stringer("monitor", m).Msg("Created desktop window")
	return w, nil
}

// decorate sets the properties that make window managers treat the window
// as desktop background.
func (c *Conn) decorate(id xproto.Window, m monitor.Monitor) error {
	typeAtom, err := c.getAtom("_NET_WM_WINDOW_TYPE")
	if err != nil {
		return err
	}
	desktopAtom, err := c.getAtom("_NET_WM_WINDOW_TYPE_DESKTOP")
	if err != nil {
		return err
	}
	buf := make([]byte, 4)
	xgb.Put32(buf, uint32(desktopAtom))
	if err := xproto.ChangePropertyChecked(
		c.conn, xproto.PropModeReplace, id, typeAtom, xproto.AtomAtom, 32, 1, buf,
	).Check(); err != nil {
		return fmt.Errorf("failed to set window type: %w", err)
	}

	classAtom, err := c.getAtom("WM_CLASS")
	if err != nil {
		return err
	}
	// WM_CLASS format: instance\0class\0
	classStr := windowInstance + "\x00" + windowClass + "\x00"
	if err := xproto.ChangePropertyChecked(
		c.conn, xproto.PropModeReplace, id, classAtom, xproto.AtomString, 8,
		uint32(len(classStr)), []byte(classStr),
	).Check(); err != nil {
		return fmt.Errorf("failed to set window class: %w", err)
	}

	nameAtom, err := c.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := c.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	title := fmt.Sprintf("WallSync %d", m.Index)
	return xproto.ChangePropertyChecked(
		c.conn, xproto.PropModeReplace, id, nameAtom, utf8Atom, 8,
		uint32(len(title)), []byte(title),
	).Check()
}
