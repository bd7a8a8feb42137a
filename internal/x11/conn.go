// Package x11 is the single connection to the X server shared by geometry
// queries, workspace notifications and wallpaper publication.
package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/workspace"
)

// DefaultWorkspaceProperty is the root window property holding one
// CARDINAL per monitor with that monitor's active workspace.
const DefaultWorkspaceProperty = "OWALLPAPERD_WORKSPACES"

const currentDesktopProperty = "_NET_CURRENT_DESKTOP"

// Options configures Open.
type Options struct {
	// Display names the X display; empty means $DISPLAY.
	Display string
	// WorkspaceProperty overrides DefaultWorkspaceProperty.
	WorkspaceProperty string
	// FallbackCurrentDesktop applies _NET_CURRENT_DESKTOP to every monitor
	// when the per-monitor property is absent.
	FallbackCurrentDesktop bool
}

// Conn wraps the X connection and the resources the daemon creates on it.
type Conn struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	root   xproto.Window
	opts   Options

	xinerama bool
	randr    bool

	workspaceAtom      xproto.Atom
	currentDesktopAtom xproto.Atom

	mu           sync.Mutex
	monitorCount int
	windows      map[int]*desktopWindow

	events    chan workspace.Event
	startOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// Open connects to the X server and prepares the extensions used for
// monitor enumeration.
func Open(opts Options) (*Conn, error) {
	log := logger.WithComponent("x11")

	if opts.WorkspaceProperty == "" {
		opts.WorkspaceProperty = DefaultWorkspaceProperty
	}

	var (
		conn *xgb.Conn
		err  error
	)
	if opts.Display != "" {
		conn, err = xgb.NewConnDisplay(opts.Display)
	} else {
		conn, err = xgb.NewConn()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c := &Conn{
		conn:    conn,
		screen:  screen,
		root:    screen.Root,
		opts:    opts,
		windows: make(map[int]*desktopWindow),
		events:  make(chan workspace.Event, 64),
		done:    make(chan struct{}),
	}

	if err := xinerama.Init(conn); err != nil {
		log.Warn().Err(err).Msg("Xinerama extension not available, treating the screen as one monitor")
	} else {
		c.xinerama = true
	}

	if err := randr.Init(conn); err != nil {
		log.Warn().Err(err).Msg("RandR extension not available, monitor hot-plug will not be noticed")
	} else if _, err := randr.QueryVersion(conn, 1, 2).Reply(); err != nil {
		log.Warn().Err(err).Msg("RandR version query failed")
	} else {
		c.randr = true
	}

	if c.workspaceAtom, err = c.getAtom(opts.WorkspaceProperty); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to intern %s atom: %w", opts.WorkspaceProperty, err)
	}
	if c.currentDesktopAtom, err = c.getAtom(currentDesktopProperty); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to intern %s atom: %w", currentDesktopProperty, err)
	}

	log.Info().
		Uint8("depth", screen.RootDepth).
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Bool("xinerama", c.xinerama).
		Bool("randr", c.randr).
		Str("workspace_property", opts.WorkspaceProperty).
		Msg("Connected to X server")

	return c, nil
}

// Close destroys the desktop windows and closes the connection. The event
// channel is closed once the pump notices.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for idx, w := range c.windows {
			w.destroy(c.conn)
			delete(c.windows, idx)
		}
		c.mu.Unlock()
		c.conn.Sync()
		c.conn.Close()
		logger.WithComponent("x11").Info().Msg("X connection closed")
	})
	return nil
}

// getAtom gets an atom ID by name
func (c *Conn) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(c.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
