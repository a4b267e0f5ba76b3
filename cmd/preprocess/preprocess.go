// Package preprocess renders the labelled recordings into training images.
package preprocess

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/observability"
	"github.com/ycry/ycry-go/internal/training"
)

// Command creates the preprocess command.
func Command(settings *conf.Settings) *cobra.Command {
	var metricsListen string
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Render the dataset into augmented spectrogram images",
		Long:  "Decode every recording under the dataset directory, augment it and write one spectrogram image per variant.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, metricsListen)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.Flags()
	flags.StringVar(&settings.Training.DatasetDir, "dataset", viper.GetString("training.datasetdir"), "Raw dataset directory, one subdirectory per label")
	flags.StringVarP(&settings.Training.ImageDir, "output", "o", viper.GetString("training.imagedir"), "Output directory for rendered images")
	flags.IntVarP(&settings.Training.Workers, "workers", "w", viper.GetInt("training.workers"), "Parallel workers, 0 uses every CPU")
	flags.Uint64Var(&settings.Training.Seed, "seed", viper.GetUint64("training.seed"), "Seed for the augmentation noise")

	return conf.BindFlags(flags, map[string]string{
		"training.datasetdir": "dataset",
		"training.imagedir":   "output",
		"training.workers":    "workers",
		"training.seed":       "seed",
	})
}

// Run preprocesses the dataset described by settings. A non-empty
// metricsListen exposes the training metrics while the run lasts.
func Run(ctx context.Context, settings *conf.Settings, metricsListen string) error {
	log := logger.Global().Module("preprocess")

	deps, err := training.DependenciesFromSettings(settings)
	if err != nil {
		return err
	}
	deps.Logger = log

	if metricsListen != "" {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		stop, err := observability.ServeMetrics(ctx, metricsListen, m, settings.Debug, log)
		if err != nil {
			return err
		}
		defer stop()
		deps.Metrics = m.Training
	}

	report, err := training.Preprocess(ctx, training.PreprocessConfigFromSettings(settings), deps)
	if err != nil {
		return err
	}
	log.Info("Preprocessing finished",
		logger.Int("files", report.Files),
		logger.Int("failed", report.Failed),
		logger.Int("images", report.Images),
		logger.Any("per_label", report.PerLabel),
		logger.Duration("elapsed", report.Duration))
	return nil
}
