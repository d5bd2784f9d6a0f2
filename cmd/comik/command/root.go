package command

// root.go defines the root command of comik and its global flags.

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"comik/internal/config"
)

var (
	debug     bool   // enable debug output
	barkURL   string // Bark device URL, empty disables pushes
	cacheDir  string // page image cache, removed after every run
	repoDir   string // documents and marker files
	markStore string // alternative mark store URL

	logger = slog.Default()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comik",
	Short: "comik - deliver new comic chapters to your e-reader",
	Long: `comik checks the subscribed comics of every configured source for chapters it
has not delivered yet, turns each new chapter into an A5 PDF and mails it to the
configured receivers. Run it periodically, e.g. from cron.

Every flag can be preset with an environment variable or a .env file:
COMIK_DEBUG, COMIK_BARK, COMIK_CACHE, COMIK_REPO and COMIK_MARK_STORE.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(os.Stderr, debug).With(slog.String("run", uuid.NewString()))
		slog.SetDefault(logger)

		logger.Debug("[args] cache directory path", slog.String("cache", cacheDir))
		logger.Debug("[args] repository directory path", slog.String("repo", repoDir))
		logger.Debug("[args] Bark URL", slog.String("bark", orNull(barkURL)))
		logger.Debug("[args] mark store", slog.String("mark_store", orNull(markStore)))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	defaults, err := config.LoadDefaults()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
		defaults = config.Builtin()
	}

	// Global persistent flags = available to all subcommands.
	// -c belongs to execute --config, so --cache has no shorthand.
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", defaults.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&barkURL, "bark", "b", defaults.Bark, "Bark notification URL")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache", defaults.Cache, "Set program cache directory path")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "r", defaults.Repo, "Set repository directory path")
	rootCmd.PersistentFlags().StringVar(&markStore, "mark-store", defaults.MarkStore,
		"Mark store URL (file://, sqlite://, postgres://, redis://); default is <repo>/mark")
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
