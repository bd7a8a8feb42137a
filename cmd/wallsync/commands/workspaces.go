package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/WallSync/internal/monitor"
	"github.com/bryanchriswhite/WallSync/internal/workspace"
	"github.com/bryanchriswhite/WallSync/internal/x11"
	"github.com/spf13/cobra"
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces [WALLPAPER...]",
	Short: "Show the active workspace of each monitor",
	Long: `Read the workspace property from the root window once and print the active
workspace of every monitor.

When wallpapers are configured or given as arguments, the wallpaper each
monitor would show is printed as well.`,
	Example: `  # Show active workspaces
  wallsync workspaces

  # Show which of three wallpapers each monitor maps to
  wallsync workspaces a.jpg b.jpg c.jpg

  # Read a different property
  wallsync workspaces --workspace-property _MY_WM_WORKSPACES`,
	RunE: runWorkspaces,
}

var (
	workspacesFormat   string
	workspacesProperty string
)

// workspaceRow is one monitor in the workspaces output.
type workspaceRow struct {
	Monitor   monitor.Monitor `json:"monitor"`
	Workspace uint32          `json:"workspace"`
	Wallpaper string          `json:"wallpaper,omitempty"`
}

func init() {
	rootCmd.AddCommand(workspacesCmd)

	workspacesCmd.Flags().StringVarP(&workspacesFormat, "format", "f", "table", "output format (table or json)")
	workspacesCmd.Flags().StringVar(&workspacesProperty, "workspace-property", "", "root window property with per-monitor workspaces")
}

func runWorkspaces(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	property := cfg.WorkspaceProperty
	if workspacesProperty != "" {
		property = workspacesProperty
	}

	conn, err := x11.Open(x11.Options{
		Display:                cfg.Display,
		WorkspaceProperty:      property,
		FallbackCurrentDesktop: cfg.FallbackCurrentDesktop,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	geometry := monitor.NewProvider(conn)
	snap, err := geometry.Refresh()
	if err != nil {
		return err
	}

	current, err := workspace.New(conn, geometry).Current()
	if err != nil {
		return err
	}

	var paths []string
	for _, w := range cfg.Wallpapers {
		paths = append(paths, w.Path)
	}
	paths = append(paths, args...)

	rows := make([]workspaceRow, 0, len(current))
	for _, a := range current {
		m, ok := snap.Monitor(a.Monitor)
		if !ok {
			continue
		}
		row := workspaceRow{Monitor: m, Workspace: a.Workspace}
		if len(paths) > 0 {
			row.Wallpaper = paths[a.Workspace%uint32(len(paths))]
		}
		rows = append(rows, row)
	}

	switch workspacesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		return printWorkspacesTable(rows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", workspacesFormat)
	}
}

func printWorkspacesTable(rows []workspaceRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "MONITOR\tGEOMETRY\tWORKSPACE\tWALLPAPER")
	fmt.Fprintln(w, "-------\t--------\t---------\t---------")

	for _, r := range rows {
		wallpaper := r.Wallpaper
		if wallpaper == "" {
			wallpaper = "-"
		}
		fmt.Fprintf(w, "%d\t%dx%d+%d+%d\t%d\t%s\n",
			r.Monitor.Index, r.Monitor.Width, r.Monitor.Height, r.Monitor.X, r.Monitor.Y,
			r.Workspace, wallpaper)
	}

	return nil
}
