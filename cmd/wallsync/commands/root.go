package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/WallSync/internal/config"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "wallsync",
		Short: "WallSync - per-monitor wallpapers that follow the active workspace",
		Long: `WallSync keeps the wallpaper of every monitor in step with the virtual
workspace shown on it. Workspace N on a monitor shows wallpaper N mod L of
the configured list, and switches as soon as the window manager updates the
workspace property on the root window.

Features:
  • One wallpaper per monitor, driven by X11 root window properties
  • Xinerama/RandR monitor layout with live hot-plug handling
  • Stretch, center, fit and tile fill modes
  • Decoded images and rendered frames are cached
  • Wallpaper files are reloaded when they change on disk`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/wallsync/config.yaml)")
	rootCmd.PersistentFlags().String("display", "", "X display to connect to (default is $DISPLAY)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable log output")

	// Bind flags to viper
	viper.BindPFlag("display", rootCmd.PersistentFlags().Lookup("display"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	viper.SetEnvPrefix("wallsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file, applies flag and environment overrides
// and sets up logging.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	configMgr.ApplyOverrides(viper.GetViper())

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", configMgr.GetConfigPath(), err)
	}
	return configMgr, cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
