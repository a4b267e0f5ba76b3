// Package cmd assembles the ycry command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ycry/ycry-go/cmd/analyze"
	"github.com/ycry/ycry-go/cmd/preprocess"
	"github.com/ycry/ycry-go/cmd/serve"
	"github.com/ycry/ycry-go/cmd/train"
	"github.com/ycry/ycry-go/cmd/version"
	"github.com/ycry/ycry-go/internal/buildinfo"
	"github.com/ycry/ycry-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ycry",
		Short:         "Infant cry classification service and training tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	versionCmd := version.Command(info)
	rootCmd.AddCommand(
		serve.Command(settings),
		analyze.Command(settings),
		preprocess.Command(settings),
		train.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// Flags take precedence over the configuration file.
		return conf.Sync(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.StringVarP(&settings.Model.Path, "model", "m", viper.GetString("model.path"), "Path to the model artifact (.ycnn or .tflite)")
	flags.StringSliceVar(&settings.Model.Labels, "labels", viper.GetStringSlice("model.labels"), "Ordered label set of the model")

	return conf.BindFlags(flags, map[string]string{
		"debug":        "debug",
		"model.path":   "model",
		"model.labels": "labels",
	})
}
