package training

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/classifier/cnn"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/observability/metrics"
)

// Trainable is a model that Fit can optimize.
type Trainable interface {
	TrainBatch(inputs []classifier.Tensor, targets []int, sampleWeights []float32, learningRate float64) (cnn.BatchResult, error)
	Evaluate(inputs []classifier.Tensor, targets []int) (cnn.BatchResult, error)
	Snapshot() any
	Restore(snapshot any) error
}

// FitConfig controls the optimization loop.
type FitConfig struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	Seed            uint64
	ClassWeights    []float32 // per class sample weight, nil = 1
	PlateauPatience int       // epochs without improvement before reducing the rate, 0 disables
	PlateauFactor   float64
	MinLearningRate float64
	EarlyStopping   int // epochs without improvement before stopping, 0 disables
	Augment         ImageAugmenter
	Metrics         *metrics.TrainingMetrics
	Logger          logger.Logger
}

// EpochResult records one epoch.
type EpochResult struct {
	Epoch           int     `yaml:"epoch"`
	Loss            float64 `yaml:"loss"`
	Accuracy        float64 `yaml:"accuracy"`
	ValLoss         float64 `yaml:"val_loss"`
	ValAccuracy     float64 `yaml:"val_accuracy"`
	LearningRate    float64 `yaml:"learning_rate"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

// History is the outcome of Fit.
type History struct {
	Labels       classifier.LabelSet `yaml:"labels"`
	Epochs       []EpochResult       `yaml:"epochs"`
	BestEpoch    int                 `yaml:"best_epoch"`
	BestValLoss  float64             `yaml:"best_val_loss"`
	StoppedEarly bool                `yaml:"stopped_early"`
	TrainSize    int                 `yaml:"train_size"`
	ValSize      int                 `yaml:"val_size"`
}

// WriteYAML stores the history at path.
func (h *History) WriteYAML(path string) error {
	data, err := yaml.Marshal(h)
	if err == nil {
		err = os.MkdirAll(filepath.Dir(path), 0o755)
	}
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		return errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("operation", "write_history").
			Context("path", path).
			Build()
	}
	return nil
}

func (c *FitConfig) applyDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 1e-3
	}
	if c.PlateauFactor <= 0 || c.PlateauFactor >= 1 {
		c.PlateauFactor = 0.5
	}
	if c.Logger == nil {
		c.Logger = GetLogger()
	}
}

// Fit trains model on train, monitoring the loss on val (the training loss
// when val is empty). The learning rate is reduced when the monitored loss
// plateaus and training stops early when it stops improving. The weights of
// the best epoch are restored before returning.
func Fit(ctx context.Context, model Trainable, train, val *Split, cfg FitConfig) (*History, error) {
	cfg.applyDefaults()
	if train == nil || train.Len() == 0 {
		return nil, errors.Newf("no training examples").
			Component("training").
			Category(errors.CategoryTraining).
			Build()
	}

	log := cfg.Logger
	rng := rand.New(rand.NewPCG(cfg.Seed, 0x666974))
	hist := &History{TrainSize: train.Len(), BestEpoch: -1, BestValLoss: math.Inf(1)}
	if val != nil {
		hist.ValSize = val.Len()
	}

	lr := cfg.LearningRate
	var (
		best         any
		sinceBest    int
		sincePlateau int
	)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}
		start := time.Now()

		loss, acc, err := runEpoch(model, train, cfg, lr, rng)
		if err != nil {
			return hist, err
		}

		valLoss, valAcc := loss, acc
		if val != nil && val.Len() > 0 {
			res, err := model.Evaluate(val.Inputs, val.Targets)
			if err != nil {
				return hist, err
			}
			valLoss, valAcc = res.Loss, res.Accuracy
		}

		result := EpochResult{
			Epoch:           epoch,
			Loss:            loss,
			Accuracy:        acc,
			ValLoss:         valLoss,
			ValAccuracy:     valAcc,
			LearningRate:    lr,
			DurationSeconds: time.Since(start).Seconds(),
		}
		hist.Epochs = append(hist.Epochs, result)
		if cfg.Metrics != nil {
			cfg.Metrics.RecordEpoch(epoch, loss, acc, valLoss, valAcc, lr, result.DurationSeconds)
		}
		log.Info("Epoch complete",
			logger.Int("epoch", epoch),
			logger.Float64("loss", loss),
			logger.Float64("accuracy", acc),
			logger.Float64("val_loss", valLoss),
			logger.Float64("val_accuracy", valAcc),
			logger.Float64("learning_rate", lr))

		if valLoss < hist.BestValLoss {
			hist.BestValLoss, hist.BestEpoch = valLoss, epoch
			best = model.Snapshot()
			sinceBest, sincePlateau = 0, 0
			continue
		}

		sinceBest++
		sincePlateau++
		if cfg.PlateauPatience > 0 && sincePlateau >= cfg.PlateauPatience {
			if next := math.Max(lr*cfg.PlateauFactor, cfg.MinLearningRate); next < lr {
				log.Info("Reducing learning rate", logger.Float64("from", lr), logger.Float64("to", next))
				lr = next
			}
			sincePlateau = 0
		}
		if cfg.EarlyStopping > 0 && sinceBest >= cfg.EarlyStopping {
			log.Info("Stopping early", logger.Int("epoch", epoch), logger.Int("best_epoch", hist.BestEpoch))
			hist.StoppedEarly = true
			break
		}
	}

	if best != nil {
		if err := model.Restore(best); err != nil {
			return hist, err
		}
	}
	return hist, nil
}

// runEpoch performs one pass over train in shuffled mini-batches and returns
// the example-weighted mean loss and accuracy.
func runEpoch(model Trainable, train *Split, cfg FitConfig, lr float64, rng *rand.Rand) (float64, float64, error) {
	var loss, acc float64
	order := rng.Perm(train.Len())
	for lo := 0; lo < len(order); lo += cfg.BatchSize {
		idx := order[lo:min(lo+cfg.BatchSize, len(order))]

		inputs := make([]classifier.Tensor, len(idx))
		targets := make([]int, len(idx))
		var weights []float32
		if cfg.ClassWeights != nil {
			weights = make([]float32, len(idx))
		}
		for i, j := range idx {
			inputs[i] = cfg.Augment.Apply(train.Inputs[j], rng)
			targets[i] = train.Targets[j]
			if weights != nil {
				weights[i] = cfg.ClassWeights[targets[i]]
			}
		}

		res, err := model.TrainBatch(inputs, targets, weights, lr)
		if err != nil {
			return 0, 0, err
		}
		loss += res.Loss * float64(len(idx))
		acc += res.Accuracy * float64(len(idx))
	}
	n := float64(train.Len())
	return loss / n, acc / n, nil
}
