package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xinerama"
	"github.com/bryanchriswhite/WallSync/internal/logger"
)

// QueryMonitors returns the Xinerama screen rectangles in enumeration
// order. Without an active Xinerama the whole X screen is one monitor.
func (c *Conn) QueryMonitors() ([]image.Rectangle, error) {
	rects, err := c.queryMonitors()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.monitorCount = len(rects)
	c.mu.Unlock()
	return rects, nil
}

func (c *Conn) queryMonitors() ([]image.Rectangle, error) {
	log := logger.WithComponent("x11")

	if c.xinerama {
		active, err := xinerama.IsActive(c.conn).Reply()
		if err != nil {
			return nil, fmt.Errorf("xinerama is-active: %w", err)
		}
		if active.State != 0 {
			reply, err := xinerama.QueryScreens(c.conn).Reply()
			if err != nil {
				return nil, fmt.Errorf("xinerama query-screens: %w", err)
			}
			rects := make([]image.Rectangle, 0, len(reply.ScreenInfo))
			for _, s := range reply.ScreenInfo {
				x, y := int(s.XOrg), int(s.YOrg)
				rects = append(rects, image.Rect(x, y, x+int(s.Width), y+int(s.Height)))
			}
			log.Debug().Uint32("screens", reply.Number).Msg("Queried Xinerama screens")
			return rects, nil
		}
		log.Debug().Msg("Xinerama inactive, using the root screen")
	}

	// The screen size in the setup block goes stale after a RandR resize,
	// so ask the root window directly.
	geom, err := c.rootGeometry()
	if err != nil {
		return nil, err
	}
	return []image.Rectangle{geom}, nil
}
