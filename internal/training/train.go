package training

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/classifier/cnn"
	"github.com/ycry/ycry-go/internal/logger"
)

// TrainConfig configures TrainModel.
type TrainConfig struct {
	ImageDir        string
	ModelOut        string
	Labels          classifier.LabelSet
	Architecture    cnn.Architecture // zero value = cnn.DefaultArchitecture
	ValidationSplit float64
	Fit             FitConfig
}

// TrainResult is the outcome of TrainModel.
type TrainResult struct {
	History     *History
	ModelPath   string
	HistoryPath string
}

// HistoryPath returns the path of the training history written next to the
// model artifact at modelPath.
func HistoryPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_history.yaml"
}

// TrainModel loads the rendered dataset, trains a native network with
// balanced class weights and writes the model artifact and its history.
func TrainModel(ctx context.Context, cfg TrainConfig) (*TrainResult, error) {
	start := time.Now()
	log := cfg.Fit.Logger
	if log == nil {
		log = GetLogger()
		cfg.Fit.Logger = log
	}

	arch := cfg.Architecture
	if len(arch.Stages) == 0 {
		arch = cnn.DefaultArchitecture(cfg.Labels.Len())
	}
	arch.Classes = cfg.Labels.Len()

	ds, err := LoadDataset(cfg.ImageDir, cfg.Labels, arch.InputWidth, arch.InputHeight, cfg.ValidationSplit)
	if err != nil {
		return nil, err
	}
	counts := ds.Train.Counts(cfg.Labels.Len())
	if cfg.Fit.ClassWeights == nil {
		cfg.Fit.ClassWeights = ClassWeights(counts)
	}
	log.Info("Dataset loaded",
		logger.String("labels", cfg.Labels.String()),
		logger.Int("train", ds.Train.Len()),
		logger.Int("validation", ds.Validation.Len()),
		logger.Any("class_counts", counts))

	net, err := cnn.New(arch, cfg.Labels, cfg.Fit.Seed)
	if err != nil {
		return nil, err
	}
	defer net.Close()

	hist, err := Fit(ctx, net, &ds.Train, &ds.Validation, cfg.Fit)
	if err != nil {
		return nil, err
	}
	hist.Labels = cfg.Labels

	if err := net.Save(cfg.ModelOut); err != nil {
		return nil, err
	}
	res := &TrainResult{History: hist, ModelPath: cfg.ModelOut, HistoryPath: HistoryPath(cfg.ModelOut)}
	if err := hist.WriteYAML(res.HistoryPath); err != nil {
		return nil, err
	}

	log.Info("Training complete",
		logger.String("model_path", res.ModelPath),
		logger.Int("epochs", len(hist.Epochs)),
		logger.Int("best_epoch", hist.BestEpoch),
		logger.Float64("best_val_loss", hist.BestValLoss),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}
