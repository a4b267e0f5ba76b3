package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/ycry/ycry-go/internal/logger"
)

// observerTimeout bounds a single observer notification.
const observerTimeout = 15 * time.Second

// Event describes a completed analysis for observers.
type Event struct {
	RequestID     string             `json:"request_id"`
	Filename      string             `json:"filename"`
	Label         string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Advice        string             `json:"advice"`
	Probabilities map[string]float64 `json:"probabilities"`
	LabelSet      string             `json:"label_set"`
	DurationMs    int64              `json:"duration_ms"`
	Time          time.Time          `json:"time"`
}

// Observer receives completed predictions. Observers run after the response
// is determined; their failures are logged and never reach the client.
type Observer interface {
	Name() string
	OnPrediction(ctx context.Context, ev Event) error
}

// notify delivers the prediction to every observer in the background.
func (s *Service) notify(ctx context.Context, log logger.Logger, pred *Prediction, filename string) {
	if len(s.observers) == 0 {
		return
	}

	ev := Event{
		RequestID:     pred.RequestID,
		Filename:      filename,
		Label:         pred.Label,
		Confidence:    pred.Confidence,
		Advice:        pred.Advice,
		Probabilities: pred.Probabilities,
		LabelSet:      s.cfg.Labels.Version,
		DurationMs:    pred.Duration.Milliseconds(),
		Time:          time.Now().UTC(),
	}

	for _, o := range s.observers {
		s.notifyWG.Go(func() {
			octx, cancel := context.WithTimeout(ctx, observerTimeout)
			defer cancel()

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("observer panic: %v", r)
					}
				}()
				return o.OnPrediction(octx, ev)
			}()
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordObserverError(o.Name())
				}
				log.Warn("Prediction observer failed",
					logger.String("observer", o.Name()),
					logger.Error(err))
			}
		})
	}
}
