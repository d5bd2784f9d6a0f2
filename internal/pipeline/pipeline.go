// Package pipeline runs one complete execution: read the config, fetch new
// chapters from every source, deliver them and clean up.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"comik/internal/cache"
	"comik/internal/config"
	"comik/internal/delivery"
	"comik/internal/document"
	"comik/internal/ingestion"
	"comik/internal/mark"
	"comik/internal/notify"
)

// DefaultScale shrinks images slightly inside the page margins.
const DefaultScale = 0.9

// Options describes one run.
type Options struct {
	ConfigPath string
	Learn      bool
	Scale      float64

	CacheDir  string
	RepoDir   string
	MarkStore string

	Logger   *slog.Logger
	Notifier notify.Notifier
}

// Runner wires the run's collaborators. Every field except Registry has a
// production default from NewRunner and may be replaced in tests.
type Runner struct {
	Registry  *ingestion.Registry
	NewMailer func(config.Sender) (delivery.Mailer, error)
	Assembler delivery.Assembler
	OpenMarks func(ctx context.Context, rawURL, repoDir string) (mark.Store, error)
}

// NewRunner returns a runner over registry using SMTP, PDF and the mark
// store named by the run's options.
func NewRunner(registry *ingestion.Registry) *Runner {
	return &Runner{
		Registry:  registry,
		NewMailer: NewSMTPMailer,
		Assembler: document.NewAssembler(),
		OpenMarks: mark.Open,
	}
}

// NewSMTPMailer builds the production mailer from the config file's sender.
func NewSMTPMailer(s config.Sender) (delivery.Mailer, error) {
	return delivery.NewSMTPMailer(delivery.SMTPConfig{
		Address:  s.Address,
		Host:     s.Host,
		Password: s.Password,
		Port:     s.Port,
	})
}

// Run executes one pass. Errors returned are fatal setup errors; failures of
// single sources, comics, chapters or receivers are logged and reflected in
// the report instead.
func (r *Runner) Run(ctx context.Context, opts Options) (delivery.Report, error) {
	if opts.Scale < 0 || opts.Scale > 1 {
		return delivery.Report{}, fmt.Errorf("%w: %v", document.ErrInvalidScale, opts.Scale)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	images := cache.New(opts.CacheDir, logger)
	defer images.Teardown()

	file, err := config.Read(opts.ConfigPath)
	if err != nil {
		return delivery.Report{}, err
	}
	sources, err := file.Sources()
	if err != nil {
		return delivery.Report{}, err
	}

	// Learn mode sends nothing, so the sender may still be a placeholder.
	var mailer delivery.Mailer
	if !opts.Learn {
		if mailer, err = r.NewMailer(file.Sender); err != nil {
			return delivery.Report{}, fmt.Errorf("failed to create config instance: %w", err)
		}
	}

	marks, err := r.OpenMarks(ctx, opts.MarkStore, opts.RepoDir)
	if err != nil {
		return delivery.Report{}, fmt.Errorf("failed to open mark store: %w", err)
	}
	defer func() {
		if err := marks.Close(); err != nil {
			logger.Error("[Mark] failed to close mark store", slog.Any("error", err))
		}
	}()

	env := &ingestion.Env{Logger: logger, Marks: marks, Cache: images}
	elements := ingestion.NewOrchestrator(r.Registry, env).Fetch(ctx, opts.Learn, sources)

	dispatcher := delivery.NewDispatcher(delivery.Options{
		Receivers: file.Receivers,
		Template:  file.Notify,
		Scale:     opts.Scale,
		OutputDir: opts.RepoDir,
		Learn:     opts.Learn,
		Logger:    logger,
		Marks:     marks,
		Mailer:    mailer,
		Assembler: r.Assembler,
		Notifier:  opts.Notifier,
	})
	report := dispatcher.Dispatch(ctx, elements)

	logger.Info("[Execute] run complete",
		slog.Int("chapters", len(elements)),
		slog.Int("sent", report.Sent),
		slog.Int("undelivered", report.Undelivered),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("marked", report.Marked),
		slog.Int("deliveries", report.Deliveries))
	return report, nil
}
