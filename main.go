package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ycry/ycry-go/cmd"
	"github.com/ycry/ycry-go/internal/buildinfo"
	_ "github.com/ycry/ycry-go/internal/classifier/cnn"
	_ "github.com/ycry/ycry-go/internal/classifier/tflite"
	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// A missing .env file is not an error; the environment may be set directly.
	_ = godotenv.Load()

	info := buildinfo.NewContext(version, buildDate)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(central)
	defer func() {
		_ = central.Flush()
		_ = central.Close()
	}()
	log := central.Module("main")

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, info.Release()); err != nil {
			log.Warn("Error telemetry disabled", logger.Error(err))
		}
		defer errors.FlushTelemetry(2 * time.Second)
	}

	log.Debug("Starting ycry", logger.String("version", info.GetVersion()), logger.String("build_date", info.GetBuildDate()))

	rootCmd := cmd.RootCommand(settings, info)
	if err := rootCmd.Execute(); err != nil {
		log.Error("Command failed", logger.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
