package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/workspace"
)

// Subscribe selects the root window events the daemon needs and starts the
// event pump. It must be called once before Events is read.
func (c *Conn) Subscribe() error {
	const eventMask = xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify
	if err := xproto.ChangeWindowAttributesChecked(
		c.conn,
		c.root,
		xproto.CwEventMask,
		[]uint32{eventMask},
	).Check(); err != nil {
		return fmt.Errorf("failed to set event mask: %w", err)
	}

	if c.randr {
		if err := randr.SelectInputChecked(
			c.conn,
			c.root,
			randr.NotifyMaskScreenChange|randr.NotifyMaskCrtcChange|randr.NotifyMaskOutputChange,
		).Check(); err != nil {
			return fmt.Errorf("failed to select randr input: %w", err)
		}
	}

	c.startOnce.Do(func() {
		go c.pump()
	})
	return nil
}

// Events delivers workspace and topology notifications. The channel is
// closed when the connection to the X server ends.
func (c *Conn) Events() <-chan workspace.Event {
	return c.events
}

func (c *Conn) pump() {
	log := logger.WithComponent("x11-events")
	defer close(c.events)

	for {
		ev, xerr := c.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			log.Debug().Msg("X event stream ended")
			return
		}
		if xerr != nil {
			log.Warn().Err(xerr).Msg("X error on unchecked request")
			continue
		}

		out, ok := c.translate(ev)
		if !ok {
			continue
		}
		select {
		case c.events <- out:
		case <-c.done:
			return
		}
	}
}

// translate maps raw X events to workspace notifications.
func (c *Conn) translate(ev xgb.Event) (workspace.Event, bool) {
	switch e := ev.(type) {
	case xproto.PropertyNotifyEvent:
		if e.Window != c.root {
			return workspace.Event{}, false
		}
		if e.Atom == c.workspaceAtom ||
			(c.opts.FallbackCurrentDesktop && e.Atom == c.currentDesktopAtom) {
			return workspace.Event{Kind: workspace.EventWorkspace}, true
		}
	case xproto.ConfigureNotifyEvent:
		if e.Window == c.root {
			return workspace.Event{Kind: workspace.EventTopology}, true
		}
	case randr.ScreenChangeNotifyEvent:
		return workspace.Event{Kind: workspace.EventTopology}, true
	case randr.NotifyEvent:
		return workspace.Event{Kind: workspace.EventTopology}, true
	}
	return workspace.Event{}, false
}
