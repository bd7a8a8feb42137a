package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/WallSync/internal/monitor"
	"github.com/bryanchriswhite/WallSync/internal/x11"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List monitors",
	Long: `List the monitors of the X screen in the order WallSync indexes them.

Mirrored outputs that cover the same region are reported once.`,
	Example: `  # List monitors in table format (default)
  wallsync monitors

  # List monitors in JSON format
  wallsync monitors --format json`,
	RunE: runMonitors,
}

var monitorsFormat string

func init() {
	rootCmd.AddCommand(monitorsCmd)

	monitorsCmd.Flags().StringVarP(&monitorsFormat, "format", "f", "table", "output format (table, json or yaml)")
}

func runMonitors(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, err := x11.Open(x11.Options{Display: cfg.Display})
	if err != nil {
		return err
	}
	defer conn.Close()

	snap, err := monitor.NewProvider(conn).Refresh()
	if err != nil {
		return err
	}

	switch monitorsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap.Monitors)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(snap.Monitors)
	case "table":
		return printMonitorsTable(snap.Monitors)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table', 'json' or 'yaml')", monitorsFormat)
	}
}

func printMonitorsTable(monitors []monitor.Monitor) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INDEX\tX\tY\tWIDTH\tHEIGHT")
	fmt.Fprintln(w, "-----\t-\t-\t-----\t------")

	for _, m := range monitors {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", m.Index, m.X, m.Y, m.Width, m.Height)
	}

	return nil
}
