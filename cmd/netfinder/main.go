package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"netfinder/internal/config"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "netfinder",
	Short:         "Find the network range, ASN and owner of IPv4 addresses",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("dataset", "", "path of the network ranges CSV (DATASET_PATH)")
	flags.String("backend", "", "lookup backend: memory, postgres or mmdb (BACKEND)")
	flags.Int("cache-size", 0, "maximum number of cached lookup results (CACHE_SIZE)")
	flags.String("log-level", "", "log level (LOG_LEVEL)")

	bindFlag("DATASET_PATH", flags.Lookup("dataset"))
	bindFlag("BACKEND", flags.Lookup("backend"))
	bindFlag("CACHE_SIZE", flags.Lookup("cache-size"))
	bindFlag("LOG_LEVEL", flags.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, lookupCmd, importCmd, fetchCmd)
}

func newLogger(level string) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logConfig.Level = atomicLevel

	return logConfig.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("Command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}

// bindFlag only overrides the environment when the flag was set explicitly.
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
