package dispatch

import (
	"fmt"
	"log"

	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/cristianradulescu/format-ls/internal/logging"
)

// IsChecked reports the format-on-save flag of the named formatter. With an
// empty name it reports whether every formatter has the flag set.
func (d *Dispatcher) IsChecked(name string) bool {
	if name != "" {
		formatter := d.registry.ByName(name)
		return formatter != nil && formatter.FormatOnSave()
	}

	for _, formatter := range d.registry.All() {
		if !formatter.FormatOnSave() {
			return false
		}
	}
	return true
}

// Toggle flips the format-on-save flag of the named formatter, or sets it to
// *value when value is given. With an empty name all formatters move to one
// state: *value if given, otherwise enabled when any is disabled, else disabled.
func (d *Dispatcher) Toggle(name string, value *bool) error {
	if name != "" {
		formatter := d.registry.ByName(name)
		if formatter == nil {
			return fmt.Errorf("%w: %s", formatting.ErrUnknownFormatter, name)
		}

		enable := !formatter.FormatOnSave()
		if value != nil {
			enable = *value
		}
		formatter.SetFormatOnSave(enable)
		log.Printf("%s Format on save for %s: %t", logging.LogTagDispatch, name, enable)

		return nil
	}

	all := d.registry.All()
	enable := false
	if value != nil {
		enable = *value
	} else {
		for _, formatter := range all {
			if !formatter.FormatOnSave() {
				enable = true
				break
			}
		}
	}

	for _, formatter := range all {
		formatter.SetFormatOnSave(enable)
	}
	log.Printf("%s Format on save for all %d formatter(s): %t", logging.LogTagDispatch, len(all), enable)

	return nil
}
