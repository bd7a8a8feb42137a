package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/WallSync/internal/compositor"
	"github.com/bryanchriswhite/WallSync/internal/config"
	"github.com/bryanchriswhite/WallSync/internal/daemon"
	"github.com/bryanchriswhite/WallSync/internal/imagecache"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
	"github.com/bryanchriswhite/WallSync/internal/supervise"
	"github.com/bryanchriswhite/WallSync/internal/workspace"
	"github.com/bryanchriswhite/WallSync/internal/x11"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [WALLPAPER...]",
	Short: "Run the wallpaper daemon",
	Long: `Connect to the X server and keep every monitor's wallpaper in step with its
active workspace until interrupted.

Wallpapers given as arguments are appended to those from the config file, in
order. Workspace N shows wallpaper N mod L.`,
	Example: `  # Three wallpapers, rotated by workspace number
  wallsync run ~/Pictures/a.jpg ~/Pictures/b.jpg ~/Pictures/c.png

  # Letterbox over dark grey instead of stretching
  wallsync run --mode fit --background "#202020" ~/Pictures/*.jpg

  # Use the wallpapers listed in the config file, with debug logging
  wallsync run --log-level debug`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("mode", "", "default fill mode (stretch, center, fit, tile)")
	runCmd.Flags().String("background", "", "default background colour (#rrggbb)")
	runCmd.Flags().String("workspace-property", "", "root window property with per-monitor workspaces")
	runCmd.Flags().Bool("fallback-current-desktop", true, "use _NET_CURRENT_DESKTOP for every monitor when the property is missing")
	runCmd.Flags().Bool("watch", true, "reload wallpapers when their files change")
	runCmd.Flags().Int("frame-cache", 0, "number of rendered frames to keep")

	viper.BindPFlag("mode", runCmd.Flags().Lookup("mode"))
	viper.BindPFlag("background", runCmd.Flags().Lookup("background"))
	viper.BindPFlag("workspace_property", runCmd.Flags().Lookup("workspace-property"))
	viper.BindPFlag("fallback_current_desktop", runCmd.Flags().Lookup("fallback-current-desktop"))
	viper.BindPFlag("watch_files", runCmd.Flags().Lookup("watch"))
	viper.BindPFlag("frame_cache_size", runCmd.Flags().Lookup("frame-cache"))
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("run")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Starting WallSync")

	defaults, err := fillOptions(cfg.Mode, cfg.Background)
	if err != nil {
		return err
	}

	conn, err := x11.Open(x11.Options{
		Display:                cfg.Display,
		WorkspaceProperty:      cfg.WorkspaceProperty,
		FallbackCurrentDesktop: cfg.FallbackCurrentDesktop,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	geometry := monitor.NewProvider(conn)
	geometry.OnRefresh(func(snap *monitor.Snapshot) {
		if err := conn.Reconfigure(snap); err != nil {
			log.Error().Err(err).Msg("Failed to reconfigure desktop windows")
		}
	})
	if _, err := geometry.Refresh(); err != nil {
		return err
	}
	if err := conn.Subscribe(); err != nil {
		return err
	}

	cache := imagecache.New()
	d := daemon.New(daemon.Config{
		Geometry:   geometry,
		Cache:      cache,
		Compositor: compositor.New(conn, cfg.FrameCacheSize),
		Events:     workspace.New(conn, geometry),
		Defaults:   defaults,
	})
	defer d.Close()

	if err := addWallpapers(d, cfg, defaults, args); err != nil {
		return err
	}
	paths := d.ListWallpapers()
	if len(paths) == 0 {
		return errors.New("no wallpapers: pass paths as arguments or list them in the config file")
	}
	log.Info().Int("wallpapers", len(paths)).Msg("Wallpapers registered")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := supervise.NewTree("wallsync")
	tree.Add(supervise.NewServiceFunc(d.String(), func(ctx context.Context) error {
		err := d.Run(ctx)
		if errors.Is(err, workspace.ErrConnectionLost) {
			return supervise.Fatal(err)
		}
		return err
	}))

	if cfg.WatchFiles {
		watcher, err := imagecache.NewWatcher(cache, func(path string) {
			if err := d.FileChanged(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to reload wallpaper")
			}
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := watcher.Add(p); err != nil {
				log.Warn().Err(err).Str("path", p).Msg("Not watching wallpaper")
			}
		}
		tree.Add(watcher)
	}

	err = tree.Serve(ctx)
	log.Info().Msg("Shutting down")
	return err
}

// addWallpapers registers the config file entries followed by args.
func addWallpapers(d *daemon.Daemon, cfg *config.Config, defaults compositor.Options, args []string) error {
	for _, w := range cfg.Wallpapers {
		if w.Mode == "" && w.Background == "" {
			if err := d.AddWallpaper(w.Path); err != nil {
				return err
			}
			continue
		}

		mode, bg := w.Mode, w.Background
		if mode == "" {
			mode = defaults.Mode.String()
		}
		opts, err := fillOptions(mode, bg)
		if err != nil {
			return fmt.Errorf("wallpaper %s: %w", w.Path, err)
		}
		if bg == "" {
			opts.Background = defaults.Background
		}
		if err := d.AddWallpaperWith(w.Path, opts); err != nil {
			return err
		}
	}

	for _, p := range args {
		if err := d.AddWallpaper(p); err != nil {
			return err
		}
	}
	return nil
}

func fillOptions(mode, background string) (compositor.Options, error) {
	m, err := compositor.ParseMode(mode)
	if err != nil {
		return compositor.Options{}, err
	}
	bg, err := compositor.ParseColor(background)
	if err != nil {
		return compositor.Options{}, err
	}
	return compositor.Options{Mode: m, Background: bg}, nil
}
