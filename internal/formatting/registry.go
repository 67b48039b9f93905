package formatting

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/logging"
)

// Validator checks that a configured formatter can actually run.
type Validator func(ctx context.Context, runner container.CommandRunner, cfg config.Formatter) error

// Registry holds the formatters of one workspace. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	formatters []*Formatter

	runner    container.CommandRunner
	validator Validator
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithValidator replaces the default validator. A nil validator disables validation.
func WithValidator(v Validator) RegistryOption {
	return func(r *Registry) {
		r.validator = v
	}
}

func NewRegistry(runner container.CommandRunner, opts ...RegistryOption) *Registry {
	r := &Registry{
		runner:    runner,
		validator: ValidateFormatter,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ValidateFormatter checks the container (if any) and the formatter binary.
func ValidateFormatter(ctx context.Context, runner container.CommandRunner, cfg config.Formatter) error {
	if cfg.Container != "" {
		if err := container.ValidateContainer(ctx, cfg.Container); err != nil {
			return err
		}
	}

	return container.ValidateBinary(ctx, runner, cfg.Container, cfg.Path)
}

// Populate replaces the registry contents with the enabled formatters of cfg.
// Formatters that fail validation are skipped and their errors returned.
// Every format-on-save flag starts from its configured value again.
func (r *Registry) Populate(ctx context.Context, cfg *config.Config, projectRoot string) []error {
	var errs []error
	formatters := make([]*Formatter, 0, len(cfg.Formatters))

	for name, formatterConfig := range cfg.Formatters {
		if !formatterConfig.Enabled {
			continue
		}

		if r.validator != nil {
			if err := r.validator(ctx, r.runner, formatterConfig); err != nil {
				errs = append(errs, fmt.Errorf("failed to initialize %s; error: %w", name, err))
				continue
			}
		}

		f := NewFormatter(name, formatterConfig, r.runner)
		f.root = projectRoot
		formatters = append(formatters, f)
	}

	sortByName(formatters)

	r.mu.Lock()
	r.formatters = formatters
	r.mu.Unlock()

	log.Printf("%s Populated %d formatter(s) from %s", logging.LogTagRegistry, len(formatters), cfg.Path)

	return errs
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters = nil
}

// BySource returns the formatter for a source identifier. When several claim
// it the highest priority wins, then the lowest name.
func (r *Registry) BySource(source string) *Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Formatter
	for _, f := range r.formatters {
		if !f.Matches(source) {
			continue
		}
		// formatters are name-sorted, so only a strictly higher priority replaces best
		if best == nil || f.priority > best.priority {
			best = f
		}
	}

	return best
}

func (r *Registry) ByName(name string) *Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.formatters {
		if f.name == name {
			return f
		}
	}

	return nil
}

// All returns the formatters sorted by name.
func (r *Registry) All() []*Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Formatter, len(r.formatters))
	copy(all, r.formatters)
	return all
}

func (r *Registry) By(pred func(*Formatter) bool) []*Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Formatter
	for _, f := range r.formatters {
		if pred(f) {
			matched = append(matched, f)
		}
	}

	return matched
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.formatters)
}

func sortByName(formatters []*Formatter) {
	sort.Slice(formatters, func(i, j int) bool {
		return formatters[i].name < formatters[j].name
	})
}
