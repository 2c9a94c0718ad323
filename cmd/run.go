package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fyerfyer/persona-doc-analyzer/internal/database"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/services"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var noProgress bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze the PDFs in the input directory",
	Long: `Reads the first *.json run configuration and every *.pdf in the input
directory, then writes output.json to the output directory.

Examples:
  analyzer run
  analyzer run -i /app/input -o /app/output --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runAnalysis,
}

func init() {
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(runCmd)
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"input":  cfg.Input.Dir,
		"output": cfg.Output.Dir,
	}).Info("Starting persona-driven analysis")

	store, err := setupStorage(ctx, cfg, cfg.Output.Dir)
	if err != nil {
		return err
	}

	var opts []services.AnalysisOption
	if cfg.Database.Enable {
		if err := setupDatabase(cfg, logger); err != nil {
			return err
		}
		defer database.Close()
		opts = append(opts, services.WithStatusManager(newStatusManager(logger)))
	}
	if !noProgress {
		opts = append(opts, services.WithProgress(newProgressReporter(os.Stderr, logger)))
	}

	srv, cleanup, err := buildAnalysisService(cfg, logger, store, opts...)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := srv.Run(ctx, cfg.Input.Dir)
	if err != nil {
		if errors.Is(err, models.ErrNoDocuments) {
			logger.WithError(err).Warn("No PDF files found, nothing to do")
			return nil
		}
		logger.WithError(err).Error("Analysis failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":   result.RunID,
		"domain":   result.Domain,
		"location": result.OutputLocation,
	}).Info("Analysis complete")
	return nil
}

// newProgressReporter 首次回调时按文档总数创建进度条，写入out
func newProgressReporter(out io.Writer, logger *logrus.Logger) services.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int, document string) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(out),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Analyzing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(out)
				}),
			)
		}
		bar.Describe(fmt.Sprintf("[cyan]Analyzing[reset] %s", document))
		if err := bar.Set(done); err != nil {
			logger.WithError(err).WithField("document", document).Debug("Failed to update progress bar")
		}
	}
}
