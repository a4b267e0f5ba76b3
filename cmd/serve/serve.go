// Package serve runs the cry analysis HTTP service.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ycry/ycry-go/internal/api"
	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/journal"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/mqtt"
	"github.com/ycry/ycry-go/internal/observability"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cry analysis API",
		Long:  "Start the HTTP API that classifies uploaded cry recordings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.Flags()
	flags.StringVarP(&settings.WebServer.Listen, "listen", "l", viper.GetString("webserver.listen"), "Listen address of the HTTP API")
	flags.StringVar(&settings.WebServer.TempDir, "tempdir", viper.GetString("webserver.tempdir"), "Directory for transient upload files")
	flags.IntVar(&settings.WebServer.MaxUploadMB, "max-upload-mb", viper.GetInt("webserver.maxuploadmb"), "Maximum upload size in megabytes")
	flags.Float64Var(&settings.WebServer.RateLimit, "rate-limit", viper.GetFloat64("webserver.ratelimit"), "Requests per second per client, 0 disables")
	flags.BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish predictions to MQTT")
	flags.StringVar(&settings.MQTT.Broker, "mqtt-broker", viper.GetString("mqtt.broker"), "MQTT broker URL")
	flags.BoolVar(&settings.Journal.Enabled, "journal", viper.GetBool("journal.enabled"), "Record predictions in the journal database")

	return conf.BindFlags(flags, map[string]string{
		"webserver.listen":      "listen",
		"webserver.tempdir":     "tempdir",
		"webserver.maxuploadmb": "max-upload-mb",
		"webserver.ratelimit":   "rate-limit",
		"mqtt.enabled":          "mqtt",
		"mqtt.broker":           "mqtt-broker",
		"journal.enabled":       "journal",
	})
}

// Run serves the API until ctx is cancelled. A model that fails to load
// leaves the service running in degraded mode.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")
	if !settings.WebServer.Enabled {
		return fmt.Errorf("web server is disabled in the configuration")
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	deps, err := inference.DependenciesFromSettings(settings)
	if err != nil {
		return err
	}
	deps.Metrics = m.Inference

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(&settings.MQTT)
		client, err := mqtt.NewClient(cfg, m.MQTT)
		if err != nil {
			return err
		}
		publisher := mqtt.NewPublisher(client, cfg.Topic)
		defer publisher.Close()
		deps.Observers = append(deps.Observers, publisher)
		log.Info("MQTT publishing enabled", logger.String("broker", cfg.Broker), logger.String("topic", cfg.Topic))
	}

	if settings.Journal.Enabled {
		j, err := journal.Open(settings.Journal.Driver, settings.Journal.DSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Warn("Failed to close journal", logger.Error(err))
			}
		}()
		deps.Observers = append(deps.Observers, j)
	}

	svc, err := inference.New(inference.ConfigFromSettings(settings), deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("Failed to close inference service", logger.Error(err))
		}
	}()

	if err := svc.LoadModel(settings.Model.Path); err != nil {
		log.Error("Model not loaded, serving in degraded mode",
			logger.String("model_path", settings.Model.Path),
			logger.Error(err))
	}

	server, err := api.New(api.ConfigFromSettings(settings), svc, api.WithMetrics(m))
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
