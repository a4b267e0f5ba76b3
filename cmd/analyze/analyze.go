// Package analyze classifies recordings from the command line.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze [recording...]",
		Short: "Classify cry recordings",
		Long:  "Classify one or more recordings with the configured model and print the results.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, args, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per recording")
	return cmd
}

// Result is one analyzed recording.
type Result struct {
	File       string  `json:"file"`
	Prediction string  `json:"prediction,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
	Advice     string  `json:"advice,omitempty"`
	Error      string  `json:"error,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Seconds    float64 `json:"seconds"`
}

// Run analyzes every file and writes the results to out. A failing file is
// reported and does not stop the run; Run fails when the model cannot be
// loaded or any file failed.
func Run(ctx context.Context, settings *conf.Settings, files []string, out io.Writer, asJSON bool) error {
	log := logger.Global().Module("analyze")

	deps, err := inference.DependenciesFromSettings(settings)
	if err != nil {
		return err
	}
	cfg := inference.ConfigFromSettings(settings)
	if cfg.TempDir == "" {
		tmp, err := os.MkdirTemp("", "ycry-analyze-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		cfg.TempDir = tmp
	}

	svc, err := inference.New(cfg, deps)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.LoadModel(settings.Model.Path); err != nil {
		return err
	}

	results := make([]Result, 0, len(files))
	failed := 0
	for _, path := range files {
		res := analyzeFile(ctx, svc, path)
		if res.Error != "" {
			failed++
			log.Warn("Analysis failed", logger.String("file", path), logger.String("error", res.Error))
		}
		results = append(results, res)
	}

	if err := write(out, results, asJSON); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d recordings could not be analyzed", failed, len(files))
	}
	return nil
}

func analyzeFile(ctx context.Context, svc *inference.Service, path string) Result {
	res := Result{File: path}
	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		res.Kind = string(inference.KindNoFile)
		return res
	}
	defer f.Close()

	pred, err := svc.Analyze(ctx, inference.Upload{Filename: filepath.Base(path), Body: f})
	if err != nil {
		res.Error = err.Error()
		res.Kind = string(inference.KindOf(err))
		return res
	}
	res.Prediction = pred.Label
	res.Confidence = inference.FormatConfidence(pred.Confidence)
	res.Advice = pred.Advice
	res.Seconds = pred.Duration.Seconds()
	return res
}

func write(out io.Writer, results []Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPREDICTION\tCONFIDENCE\tADVICE")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\terror\t-\t%s\n", r.File, r.Kind)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%%\t%s\n", r.File, r.Prediction, r.Confidence, r.Advice)
	}
	return tw.Flush()
}
