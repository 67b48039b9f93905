package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/dispatch"
	"github.com/cristianradulescu/format-ls/internal/filelock"
	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/cristianradulescu/format-ls/internal/logging"
	"github.com/cristianradulescu/format-ls/internal/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type formatOptions struct {
	write  bool
	source string
	jobs   int
	root   string

	// test hooks
	registryOpts []formatting.RegistryOption
	runner       container.CommandRunner
}

type formatResult struct {
	path    string
	output  string
	changed bool
	err     error
}

func NewFormatCommand() *cobra.Command {
	var opts formatOptions

	cmd := &cobra.Command{
		Use:   "format [flags] FILE...",
		Short: "Format files with the configured formatters",
		Long: `Format each file with the formatter configured for its language and
print the result, or write it back with --write.

The language is detected from the file extension unless --source is given.
The project config is looked up from the first file's directory upwards
unless --root is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "Write the result back to the source file")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Language identifier to use instead of the file extension")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "Number of files formatted in parallel (default GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.root, "root", "", "Project root holding the config file")

	return cmd
}

func runFormat(ctx context.Context, opts formatOptions, files []string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dispatcher, err := newDispatcher(ctx, opts.root, files[0], opts.runner, opts.registryOpts, errOut)
	if err != nil {
		return err
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// each goroutine owns results[i]
	results := make([]formatResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			results[i] = formatOne(gctx, dispatcher, opts, path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if result.err != nil {
			failed++
			fmt.Fprintf(errOut, "%s %s: %v\n", color.RedString("failed"), result.path, result.err)
			continue
		}

		switch {
		case !opts.write:
			fmt.Fprint(out, result.output)
		case result.changed:
			fmt.Fprintf(errOut, "%s %s\n", color.GreenString("formatted"), result.path)
		default:
			fmt.Fprintf(errOut, "%s %s\n", color.New(color.Faint).Sprint("unchanged"), result.path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to format", failed, len(files))
	}

	return nil
}

func formatOne(ctx context.Context, dispatcher *dispatch.Dispatcher, opts formatOptions, path string) formatResult {
	result := formatResult{path: path}

	absPath, err := filepath.Abs(path)
	if err != nil {
		result.err = err
		return result
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		result.err = fmt.Errorf("failed to read file: %w", err)
		return result
	}

	source := opts.source
	if source == "" {
		source = utils.DetectLanguageID(absPath)
	}

	log.Printf("%s Formatting %s (source %q)", logging.LogTagCmd, absPath, source)
	buffer := dispatch.NewBuffer(source, absPath, string(content))
	if err := dispatcher.FormatFile(ctx, buffer); err != nil {
		result.err = err
		return result
	}

	result.output = buffer.String()
	result.changed = result.output != string(content)

	if opts.write && result.changed {
		if err := filelock.LockAndWrite(absPath, []byte(result.output)); err != nil {
			result.err = err
		}
	}

	return result
}

// newDispatcher loads the project config for root (or the project of
// firstFile) and returns a dispatcher over its formatters. Formatters that
// fail validation are reported on errOut and left out.
func newDispatcher(ctx context.Context, root, firstFile string, runner container.CommandRunner, registryOpts []formatting.RegistryOption, errOut io.Writer) (*dispatch.Dispatcher, error) {
	if root == "" {
		absPath, err := filepath.Abs(firstFile)
		if err != nil {
			return nil, err
		}
		root = utils.FindProjectRoot(absPath)
	}

	cfg, err := (&config.Config{}).LoadConfig(root)
	if err != nil {
		return nil, err
	}

	log.Printf("%s Loaded config: %s", logging.LogTagCmd, cfg.Path)

	if runner == nil {
		runner = container.NewCommandRunner()
	}

	registry := formatting.NewRegistry(runner, registryOpts...)
	for _, populateErr := range registry.Populate(ctx, cfg, root) {
		fmt.Fprintf(errOut, "%s %v\n", color.YellowString("warning"), populateErr)
	}

	return dispatch.New(registry), nil
}
