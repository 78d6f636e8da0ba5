// Package captures hosts the command that lists recorded captures.
package captures

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/datastore"
)

// Command creates the capture history command.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "captures",
		Short: "List recorded captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of captures to show, newest first")
	return cmd
}

func run(settings *conf.Settings, limit int) error {
	store, err := datastore.Open(settings.Capture.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	all, err := store.LoadAll()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("no captures recorded yet")
		return nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	for i := len(all) - 1; i >= start; i-- {
		c := all[i]
		mode := "manual"
		if c.Auto {
			mode = "auto"
		}
		fmt.Printf("%s  %-20s %-24s score=%.2f %s %s\n",
			c.Timestamp.Format("2006-01-02 15:04:05"),
			c.PredictedName, c.ScientificName, c.Score, mode, c.Location)
	}
	fmt.Printf("\n%d captures total\n", len(all))
	return nil
}
