package command

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"comik/internal/ingestion"
	"comik/internal/ingestion/dmzj"
	"comik/internal/ingestion/mangadex"
	"comik/internal/notify"
	"comik/internal/pipeline"
)

var errScale = errors.New("scale factor must be between 0.0 and 1.0")

var (
	learn      bool
	scale      float64
	configPath string
)

// executeCmd runs one fetch and delivery pass
var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Fetch new chapters and mail them to the receivers",
	Long: `Fetch every subscription listed in the config file, build a document for each
chapter that has not been delivered yet, mail it to all receivers and mark it.

With --learn nothing is downloaded or sent; new chapters are only marked. Use it
once after adding a subscription so that only future chapters get delivered.`,
	Example: `  comik execute --config /etc/comik/config.json
  comik --bark https://api.day.app/<key> execute -l -c config.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("run command: execute")
		logger.Debug("[args::execute] learn", slog.Bool("learn", learn))
		logger.Debug("[args::execute] scale", slog.Float64("scale", scale))
		logger.Debug("[args::execute] config file path", slog.String("config", configPath))

		if scale < 0 || scale > 1 {
			logger.Error("[Execute] " + errScale.Error())
			return errScale
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := ingestion.NewRegistry(
			dmzj.NewSource(nil),
			mangadex.NewSource(nil),
		)
		_, err := pipeline.NewRunner(registry).Run(ctx, pipeline.Options{
			ConfigPath: configPath,
			Learn:      learn,
			Scale:      scale,
			CacheDir:   cacheDir,
			RepoDir:    repoDir,
			MarkStore:  markStore,
			Logger:     logger,
			Notifier:   notify.New(barkURL, logger),
		})
		if err != nil {
			logger.Error("[Execute] run aborted", slog.Any("error", err))
			return err
		}
		return nil
	},
}

func init() {
	executeCmd.Flags().BoolVarP(&learn, "learn", "l", false, "Mark but skip downloading matches")
	executeCmd.Flags().Float64VarP(&scale, "scale", "s", pipeline.DefaultScale,
		"Set scale factor of comic image and document page size")
	executeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Set config file path")
	_ = executeCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(executeCmd)
}
