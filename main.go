package main

import (
	"fmt"
	"os"

	"github.com/zdex/zdex-go/cmd"
	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/logging"
)

func main() {
	settings, err := conf.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(settings.Main.LogLevel)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
