package main

import (
	"fmt"
	"os"

	"github.com/fyerfyer/persona-doc-analyzer/api/middleware"
	appconfig "github.com/fyerfyer/persona-doc-analyzer/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	inputDir  string
	outputDir string

	cfg    *appconfig.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Persona-driven PDF section analyzer",
	Long: `analyzer extracts sections from a collection of PDFs, ranks them against a
persona and a job to be done, and writes a consolidated output.json.

Example usage:
  analyzer run --input ./input --output ./output
  analyzer serve --config config.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时忽略
		_ = godotenv.Load()

		var err error
		cfg, err = appconfig.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlagOverrides(cmd, cfg)

		logger = middleware.Configure(middleware.LogOptions{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if used := appconfig.UsedFile(cfgFile); used != "" {
			logger.WithField("path", used).Debug("Configuration file loaded")
		}
		return nil
	},
	RunE: runAnalysis,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVarP(&inputDir, "input", "i", "", "input directory with the run config and PDFs")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory")
}

// applyFlagOverrides 命令行参数优先于配置文件与环境变量
func applyFlagOverrides(cmd *cobra.Command, c *appconfig.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("input") {
		c.Input.Dir = inputDir
	}
	if flags.Changed("output") {
		c.Output.Dir = outputDir
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
