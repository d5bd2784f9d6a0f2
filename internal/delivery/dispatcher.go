package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"comik/internal/ingestion"
	"comik/internal/mark"
	"comik/internal/notify"
)

// Assembler builds the document of one chapter.
type Assembler interface {
	Assemble(name, dir string, images []string, scale float64) (string, error)
}

// Status is the outcome of delivering one element.
type Status string

const (
	// StatusSent means the document was built and at least one receiver
	// accepted it, or no receivers are configured.
	StatusSent Status = "sent"
	// StatusUndelivered means the document was built but every receiver
	// rejected it. The chapter is still marked.
	StatusUndelivered Status = "undelivered"
	// StatusSkipped means learn mode: nothing was built or sent.
	StatusSkipped Status = "skipped"
	// StatusFailed means the document could not be built; the chapter stays
	// unmarked and is retried next run.
	StatusFailed Status = "failed"
)

// Result describes what happened to one element.
type Result struct {
	Key      mark.Key
	Status   Status
	Document string
	Success  int
	Total    int
	Marked   bool
}

// Report sums up a dispatch.
type Report struct {
	Results []Result

	Sent        int
	Undelivered int
	Failed      int
	Skipped     int
	Marked      int

	// Deliveries counts individual mails accepted by the relay.
	Deliveries int
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusSent:
		r.Sent++
	case StatusUndelivered:
		r.Undelivered++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
	if res.Marked {
		r.Marked++
	}
	r.Deliveries += res.Success
}

// Options configures a Dispatcher.
type Options struct {
	Receivers []string
	// Template is the notification body; empty selects DefaultTemplate.
	Template  string
	Scale     float64
	OutputDir string
	Learn     bool

	Logger    *slog.Logger
	Marks     mark.Store
	Mailer    Mailer
	Assembler Assembler
	Notifier  notify.Notifier
}

// Dispatcher delivers elements and marks them as done.
type Dispatcher struct {
	opts   Options
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil Notifier disables pushes.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Dispatcher{opts: opts, logger: opts.Logger}
}

// Dispatch delivers every element concurrently. Receivers of one element are
// served one after another. Results keep the order of elements.
func (d *Dispatcher) Dispatch(ctx context.Context, elements []ingestion.Element) Report {
	results := ingestion.Gather(ctx, len(elements), func(ctx context.Context, i int) []Result {
		return []Result{d.deliver(ctx, elements[i])}
	})

	var report Report
	for _, res := range results {
		report.add(res)
	}
	return report
}

// DocumentName returns the file name of e's document. The chapter ID keeps
// chapters sharing a title, such as two scanlations of one number, apart.
func DocumentName(e ingestion.Element) string {
	return fmt.Sprintf("%s %s (%s).pdf", e.ComicName, e.ChapterName, e.ChapterID)
}

func (d *Dispatcher) deliver(ctx context.Context, e ingestion.Element) Result {
	logger := d.logger.With(
		slog.String("source", e.SourceTag),
		slog.String("comic", e.ComicID),
		slog.String("chapter", e.ChapterID))
	res := Result{Key: e.Key(), Total: len(d.opts.Receivers)}

	if d.opts.Learn {
		logger.Info("[Dispatch] skip creating document in learn mode")
		res.Status = StatusSkipped
	} else {
		doc, err := d.opts.Assembler.Assemble(DocumentName(e), d.opts.OutputDir, e.Images, d.opts.Scale)
		if err != nil {
			logger.Error("[Dispatch] failed to create document", slog.Any("error", err))
			res.Status = StatusFailed
			return res
		}
		res.Document = doc

		for _, receiver := range d.opts.Receivers {
			if err := d.opts.Mailer.SendFile(ctx, receiver, AppName, doc); err != nil {
				logger.Error("[Dispatch] failed to send mail",
					slog.String("receiver", receiver),
					slog.Any("error", err))
				continue
			}
			res.Success++
		}
		res.Status = StatusSent
		if res.Success == 0 && res.Total > 0 {
			res.Status = StatusUndelivered
		}
		logger.Info("[Dispatch] document sent",
			slog.String("document", doc),
			slog.Int("success", res.Success),
			slog.Int("total", res.Total))

		content := RenderNotification(d.opts.Template, e.ComicName, e.ChapterName, res.Success, res.Total)
		if err := d.opts.Notifier.Notify(ctx, NotifyTitle, content); err != nil {
			logger.Error("[Bark] failed to notify", slog.Any("error", err))
		}
	}

	// An interrupted run fails its remaining sends; leave those chapters for
	// the next run.
	if err := ctx.Err(); err != nil {
		logger.Warn("[Mark] run interrupted, chapter left unmarked", slog.Any("error", err))
		return res
	}
	if err := d.opts.Marks.Mark(ctx, res.Key); err != nil {
		logger.Error("[Mark] failed to mark chapter", slog.Any("error", err))
		return res
	}
	res.Marked = true
	return res
}
