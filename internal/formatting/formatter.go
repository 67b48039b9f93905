package formatting

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/logging"
)

// Placeholders expanded in formatter args.
const (
	PlaceholderFile       = "${file}"
	PlaceholderConfigFile = "${configFile}"
)

// Input is what a formatter works on. Path is the document the text belongs
// to; it may be empty for unsaved documents.
type Input struct {
	Text string
	Path string
}

type Formatter struct {
	name       string
	sources    []string
	priority   int
	input      string
	container  string
	path       string
	args       []string
	configFile string
	timeout    time.Duration
	root       string

	formatOnSave atomic.Bool
	runner       container.CommandRunner
}

func NewFormatter(name string, cfg config.Formatter, runner container.CommandRunner) *Formatter {
	f := &Formatter{
		name:       name,
		sources:    slices.Clone(cfg.Sources),
		priority:   cfg.Priority,
		input:      cfg.InputMode(),
		container:  cfg.Container,
		path:       cfg.Path,
		args:       slices.Clone(cfg.Args),
		configFile: cfg.ConfigFile,
		timeout:    cfg.Timeout(),
		runner:     runner,
	}
	f.formatOnSave.Store(cfg.FormatOnSave)

	return f
}

func (f *Formatter) Name() string {
	return f.name
}

func (f *Formatter) Sources() []string {
	return slices.Clone(f.sources)
}

func (f *Formatter) Priority() int {
	return f.priority
}

// InputMode is config.InputText or config.InputFile.
func (f *Formatter) InputMode() string {
	return f.input
}

func (f *Formatter) Matches(source string) bool {
	return source != "" && slices.Contains(f.sources, source)
}

func (f *Formatter) FormatOnSave() bool {
	return f.formatOnSave.Load()
}

func (f *Formatter) SetFormatOnSave(enabled bool) {
	f.formatOnSave.Store(enabled)
}

// Format runs the external tool over in.Text and returns the formatted text.
// File mode tools get a scratch copy of the text written next to in.Path, so
// they pick up the same project configuration without touching the document.
func (f *Formatter) Format(ctx context.Context, in Input) (string, error) {
	if in.Text == "" {
		return "", nil
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.input == config.InputFile {
		return f.formatFile(ctx, in)
	}

	cmd := container.Command{
		Container: f.container,
		Path:      f.path,
		Args:      f.expandArgs(in.Path),
		Stdin:     strings.NewReader(in.Text),
	}
	if filepath.IsAbs(in.Path) {
		cmd.Dir = filepath.Dir(in.Path)
	}

	log.Printf("%s Running formatter %s on stdin", logging.LogTagFormat, f.name)
	result := f.runner.Run(ctx, cmd)
	output := string(result.Stdout)
	if result.Err != nil {
		return "", &FormatError{Formatter: f.name, Output: output, Detail: string(result.Stderr), Err: result.Err}
	}
	if output == "" {
		return "", &FormatError{Formatter: f.name, Detail: string(result.Stderr), Err: ErrEmptyOutput}
	}

	return output, nil
}

func (f *Formatter) formatFile(ctx context.Context, in Input) (string, error) {
	scratch, err := writeScratchFile(in)
	if err != nil {
		return "", &FormatError{Formatter: f.name, Err: err}
	}
	defer os.Remove(scratch)

	cmd := container.Command{
		Container: f.container,
		Path:      f.path,
		Args:      f.expandArgs(scratch),
		Dir:       filepath.Dir(scratch),
	}

	log.Printf("%s Running formatter %s on %s", logging.LogTagFormat, f.name, scratch)
	result := f.runner.Run(ctx, cmd)
	if result.Err != nil {
		return "", &FormatError{Formatter: f.name, Output: string(result.Stdout), Detail: string(result.Stderr), Err: result.Err}
	}

	formatted, err := os.ReadFile(scratch)
	if err != nil {
		return "", &FormatError{Formatter: f.name, Err: fmt.Errorf("failed to read formatted file: %w", err)}
	}
	if len(formatted) == 0 {
		return "", &FormatError{Formatter: f.name, Detail: string(result.Stderr), Err: ErrEmptyOutput}
	}

	return string(formatted), nil
}

// writeScratchFile stores in.Text beside in.Path, keeping the extension so
// tools that dispatch on it still work. Documents without a file path, such
// as untitled buffers, and unwritable directories use the temp dir.
func writeScratchFile(in Input) (string, error) {
	dir := os.TempDir()
	pattern := ".format-ls-*" + filepath.Ext(in.Path)
	if filepath.IsAbs(in.Path) {
		dir = filepath.Dir(in.Path)
	}

	file, err := os.CreateTemp(dir, pattern)
	if err != nil && dir != os.TempDir() {
		file, err = os.CreateTemp("", pattern)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(in.Text); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}

	return file.Name(), nil
}

func (f *Formatter) expandArgs(path string) []string {
	target := f.containerPath(path)

	args := make([]string, 0, len(f.args)+1)
	hasFile := false
	for _, arg := range f.args {
		if strings.Contains(arg, PlaceholderFile) {
			hasFile = true
			arg = strings.ReplaceAll(arg, PlaceholderFile, target)
		}
		arg = strings.ReplaceAll(arg, PlaceholderConfigFile, f.configFile)
		args = append(args, arg)
	}

	if f.input == config.InputFile && !hasFile {
		args = append(args, target)
	}

	return args
}

// containerPath makes path relative to the project root for containerized
// tools, which see the project mounted at their working directory.
func (f *Formatter) containerPath(path string) string {
	if f.container == "" || f.root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
