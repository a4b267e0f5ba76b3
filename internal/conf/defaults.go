// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/ycry.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("audio.samplerate", SampleRate)
	viper.SetDefault("audio.inferenceduration", InferenceDurationSeconds)
	viper.SetDefault("audio.trainingduration", TrainingDurationSeconds)
	viper.SetDefault("audio.ffmpegpath", "ffmpeg")

	viper.SetDefault("spectrogram.fftsize", 2048)
	viper.SetDefault("spectrogram.hoplength", 512)
	viper.SetDefault("spectrogram.mels", 128)
	viper.SetDefault("spectrogram.fmin", 0.0)
	viper.SetDefault("spectrogram.fmax", 8000.0)
	viper.SetDefault("spectrogram.topdb", 80.0)
	viper.SetDefault("spectrogram.trainingwidth", DefaultTrainingImageWidth)
	viper.SetDefault("spectrogram.trainingheight", DefaultTrainingImageHeight)

	viper.SetDefault("model.path", "ycry_custom_cnn.ycnn")
	viper.SetDefault("model.labels", DefaultLabels)
	viper.SetDefault("model.labelsetversion", DefaultLabelSetVersion)
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.inputsize", ModelInputSize)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.tempdir", "")
	viper.SetDefault("webserver.maxuploadmb", 25)
	viper.SetDefault("webserver.ratelimit", 5.0)
	viper.SetDefault("webserver.rateburst", 10)
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("training.datasetdir", "raw_dataset")
	viper.SetDefault("training.imagedir", "processed_images")
	viper.SetDefault("training.modelout", "ycry_custom_cnn.ycnn")
	viper.SetDefault("training.epochs", 50)
	viper.SetDefault("training.batchsize", 32)
	viper.SetDefault("training.learningrate", 0.001)
	viper.SetDefault("training.validationsplit", 0.2)
	viper.SetDefault("training.seed", 42)
	viper.SetDefault("training.workers", 0)
	viper.SetDefault("training.noisefactor", 0.005)
	viper.SetDefault("training.stretchrate", 0.9)
	viper.SetDefault("training.earlystopping", 6)
	viper.SetDefault("training.plateaupatience", 3)
	viper.SetDefault("training.plateaufactor", 0.5)
	viper.SetDefault("training.minlearningrate", 0.00001)
	viper.SetDefault("training.imageaugment.widthshift", 0.15)
	viper.SetDefault("training.imageaugment.zoom", 0.15)
	viper.SetDefault("training.imageaugment.shear", 0.1)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "ycry/predictions")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.driver", "sqlite")
	viper.SetDefault("journal.dsn", "ycry_journal.db")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
