package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/cristianradulescu/format-ls/internal/logging"
)

// PickerDelay gives the client time to close its command UI before the
// picker list opens.
const PickerDelay = 100 * time.Millisecond

type Which string

const (
	WhichEnabled  Which = "enabled"
	WhichDisabled Which = "disabled"
)

func ParseWhich(s string) (Which, error) {
	switch Which(s) {
	case WhichEnabled, WhichDisabled:
		return Which(s), nil
	default:
		return "", fmt.Errorf("invalid picker filter %q (want %q or %q)", s, WhichEnabled, WhichDisabled)
	}
}

// Scheduler runs f once after delay. There is no cancellation.
type Scheduler interface {
	AfterFunc(delay time.Duration, f func())
}

type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(delay time.Duration, f func()) {
	time.AfterFunc(delay, f)
}

// Window shows a selection list. ShowQuickPanel calls onSelect with the
// chosen index, or a negative index when the list was dismissed.
type Window interface {
	Alive() bool
	ShowQuickPanel(ctx context.Context, items []string, onSelect func(index int))
}

// Candidates returns the names of formatters whose format-on-save flag
// matches which.
func (d *Dispatcher) Candidates(which Which) []string {
	enabled := which == WhichEnabled

	var names []string
	for _, formatter := range d.registry.By(func(f *formatting.Formatter) bool {
		return f.FormatOnSave() == enabled
	}) {
		names = append(names, formatter.Name())
	}

	return names
}

// Manage lists the formatters matching which and, after PickerDelay, lets the
// user pick one to toggle. The list is built now; if the window is gone by
// the time the delay elapses nothing happens.
func (d *Dispatcher) Manage(ctx context.Context, which Which, window Window) {
	items := d.Candidates(which)

	callback := func(selection int) {
		if selection < 0 || selection >= len(items) {
			return
		}
		if err := d.Toggle(items[selection], nil); err != nil {
			d.reporter.Report(ctx, err)
		}
	}

	d.scheduler.AfterFunc(PickerDelay, func() {
		if !window.Alive() {
			log.Printf("%s Picker dropped, window is gone", logging.LogTagDispatch)
			return
		}
		window.ShowQuickPanel(ctx, items, callback)
	})
}
