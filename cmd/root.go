package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zdex/zdex-go/cmd/achievements"
	"github.com/zdex/zdex-go/cmd/captures"
	"github.com/zdex/zdex-go/cmd/realtime"
	"github.com/zdex/zdex-go/internal/conf"
)

// RootCommand builds the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zdex",
		Short: "ZDex wildlife camera CLI",
		Long:  "ZDex detects and classifies wildlife from a live camera feed, capturing notable sightings.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		realtime.Command(settings),
		captures.Command(settings),
		achievements.Command(settings),
	)

	return rootCmd
}

// setupFlags registers global flags. Defaults come from the loaded
// settings, so a flag left unset keeps the config file value.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().StringVar(&settings.Main.DataDir, "datadir",
		settings.Main.DataDir, "Base directory for databases, images and logs")
	cmd.PersistentFlags().StringVar(&settings.Main.LogLevel, "loglevel",
		settings.Main.LogLevel, "Log level (debug, info, warn, error)")
}
