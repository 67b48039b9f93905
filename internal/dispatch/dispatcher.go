// Package dispatch routes format requests for a view to the formatter
// registered for its source, and manages the format-on-save flags.
package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/cristianradulescu/format-ls/internal/logging"
)

// Reporter receives the diagnostics of failed operations. Reports are best
// effort and never shown as dialogs.
type Reporter interface {
	Report(ctx context.Context, err error)
}

type ReporterFunc func(ctx context.Context, err error)

func (f ReporterFunc) Report(ctx context.Context, err error) {
	f(ctx, err)
}

// LogReporter writes diagnostics to the standard logger.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, err error) {
	log.Printf("%s Format: %v", logging.LogTagDispatch, err)
}

type Dispatcher struct {
	registry  *formatting.Registry
	reporter  Reporter
	scheduler Scheduler
}

type Option func(*Dispatcher)

func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) {
		d.reporter = r
	}
}

func WithScheduler(s Scheduler) Option {
	return func(d *Dispatcher) {
		d.scheduler = s
	}
}

func New(registry *formatting.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		reporter:  LogReporter{},
		scheduler: TimerScheduler{},
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) Registry() *formatting.Registry {
	return d.registry
}

// Formatter returns the formatter that applies to view, or nil.
func (d *Dispatcher) Formatter(view View) *formatting.Formatter {
	return d.registry.BySource(view.Source())
}

// FormatSelection formats every non-empty selected region on its own, in
// selection order. A failing region is reported and left as is; regions that
// already succeeded stay replaced. It returns how many regions were formatted.
func (d *Dispatcher) FormatSelection(ctx context.Context, view View) (int, error) {
	formatter, err := d.resolve(ctx, view)
	if err != nil {
		return 0, err
	}

	formatted := 0
	for _, region := range view.Selection() {
		if region.Empty() {
			continue
		}
		if d.formatRegion(ctx, formatter, view, region) == nil {
			formatted++
		}
	}

	return formatted, nil
}

// FormatFile formats the whole view and replaces its content in place.
func (d *Dispatcher) FormatFile(ctx context.Context, view View) error {
	formatter, err := d.resolve(ctx, view)
	if err != nil {
		return err
	}

	return d.formatRegion(ctx, formatter, view, Region{Start: 0, End: view.Size()})
}

// OnSave formats the whole view before it is written, if the formatter for
// it has format-on-save set. It reports whether formatting ran.
func (d *Dispatcher) OnSave(ctx context.Context, view View) (bool, error) {
	formatter := d.Formatter(view)
	if formatter == nil || !formatter.FormatOnSave() {
		return false, nil
	}

	log.Printf("%s Format on save: %s with %s", logging.LogTagDispatch, view.Path(), formatter.Name())
	return true, d.formatRegion(ctx, formatter, view, Region{Start: 0, End: view.Size()})
}

func (d *Dispatcher) resolve(ctx context.Context, view View) (*formatting.Formatter, error) {
	formatter := d.Formatter(view)
	if formatter == nil {
		err := fmt.Errorf("%w (source %q)", formatting.ErrNoFormatter, view.Source())
		d.reporter.Report(ctx, err)
		return nil, err
	}

	return formatter, nil
}

func (d *Dispatcher) formatRegion(ctx context.Context, formatter *formatting.Formatter, view View, region Region) error {
	selection := view.Substr(region)
	output, err := formatter.Format(ctx, formatting.Input{Text: selection, Path: view.Path()})
	if err != nil {
		d.reporter.Report(ctx, err)
		return err
	}

	if output != selection {
		view.Replace(region, output)
	}

	return nil
}
