// Package realtime hosts the command that runs the live detection system.
package realtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/detection"
	"github.com/zdex/zdex-go/internal/logging"
	"github.com/zdex/zdex-go/internal/realtime"
	"github.com/zdex/zdex-go/internal/species"
)

// Command creates the realtime detection command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run live wildlife detection",
		Long:  "Start reading frames from the camera, detecting and classifying wildlife, and capturing notable sightings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().IntVar(&settings.Camera.DeviceID, "camera",
		settings.Camera.DeviceID, "Camera device id")
	cmd.Flags().Float64Var(&settings.Detection.Threshold, "threshold",
		settings.Detection.Threshold, "Detector confidence floor")
	cmd.Flags().StringVar(&settings.Detection.LabelPath, "labels",
		settings.Detection.LabelPath, "Path to the species label manifest")
	cmd.Flags().BoolVar(&settings.Metrics.Prometheus, "prometheus",
		settings.Metrics.Prometheus, "Enable the Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "listen",
		settings.Metrics.Listen, "Listen address for the metrics endpoint")
}

func run(settings *conf.Settings) error {
	log := logging.ForService("main")

	labels, err := species.LoadIndex(settings.Detection.LabelPath)
	if err != nil {
		return err
	}

	engine, err := detection.NewDNNEngine(
		settings.Detection.DetectorModel,
		settings.Detection.ClassifierModel,
		labels,
		settings.Detection.InputSize,
		settings.Detection.Threshold,
	)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	runner, err := realtime.New(settings, engine)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runner.Start(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig.String())

	runner.Stop()
	return nil
}
