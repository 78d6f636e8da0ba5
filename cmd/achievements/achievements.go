// Package achievements hosts the command that shows gamification progress.
package achievements

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/gamify"
)

// Command creates the achievements listing command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "Show achievement progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	game := gamify.NewSystem(settings.Capture.StatsPath, settings.Capture.AchievementPath)

	all := game.Achievements()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Unlocked != all[j].Unlocked {
			return all[i].Unlocked
		}
		return all[i].ID < all[j].ID
	})

	unlocked := 0
	for _, a := range all {
		marker := "  "
		if a.Unlocked {
			marker = "★ "
			unlocked++
		}
		fmt.Printf("%s%-20s %s (%d/%d)\n", marker, a.Name, a.Description, a.Progress, a.Target)
	}
	fmt.Printf("\n%d/%d unlocked, %d captures total\n", unlocked, len(all), game.TotalCaptures())
	return nil
}
