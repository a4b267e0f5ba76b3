// Package train fits the native classifier on the rendered images.
package train

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

// Command creates the train command.
func Command(settings *conf.Settings) *cobra.Command {
	var metricsListen string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier on the rendered images",
		Long:  "Train the native CNN on the preprocessed images and write the model artifact and its training history.",
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
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while training")

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	t := &settings.Training
	flags := cmd.Flags()
	flags.StringVarP(&t.ImageDir, "images", "i", viper.GetString("training.imagedir"), "Directory of rendered training images")
	flags.StringVarP(&t.ModelOut, "output", "o", viper.GetString("training.modelout"), "Path of the trained model artifact")
	flags.IntVarP(&t.Epochs, "epochs", "e", viper.GetInt("training.epochs"), "Maximum number of epochs")
	flags.IntVarP(&t.BatchSize, "batch-size", "b", viper.GetInt("training.batchsize"), "Mini-batch size")
	flags.Float64Var(&t.LearningRate, "learning-rate", viper.GetFloat64("training.learningrate"), "Initial learning rate")
	flags.Float64Var(&t.ValidationSplit, "validation-split", viper.GetFloat64("training.validationsplit"), "Fraction of each class held out for validation")
	flags.Uint64Var(&t.Seed, "seed", viper.GetUint64("training.seed"), "Seed for initialization, shuffling and dropout")

	return conf.BindFlags(flags, map[string]string{
		"training.imagedir":        "images",
		"training.modelout":        "output",
		"training.epochs":          "epochs",
		"training.batchsize":       "batch-size",
		"training.learningrate":    "learning-rate",
		"training.validationsplit": "validation-split",
		"training.seed":            "seed",
	})
}

// Run trains a model with the configured settings. A non-empty
// metricsListen exposes the training metrics while the run lasts.
func Run(ctx context.Context, settings *conf.Settings, metricsListen string) error {
	log := logger.Global().Module("train")

	cfg := training.TrainConfigFromSettings(settings)
	cfg.Fit.Logger = log

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
		cfg.Fit.Metrics = m.Training
	}

	res, err := training.TrainModel(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Model written to %s (best epoch %d, val_loss %.4f, val_accuracy %.4f)\n",
		res.ModelPath, res.History.BestEpoch, res.History.BestValLoss, bestAccuracy(res.History))
	fmt.Printf("History written to %s\n", res.HistoryPath)
	return nil
}

func bestAccuracy(h *training.History) float64 {
	for _, e := range h.Epochs {
		if e.Epoch == h.BestEpoch {
			return e.ValAccuracy
		}
	}
	return 0
}
