package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/dispatch"
	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type listOptions struct {
	enabled  bool
	disabled bool
	root     string

	registryOpts []formatting.RegistryOption
	runner       container.CommandRunner
}

func NewListCommand() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured formatters and their format-on-save state",
		Long: `List the formatters of the project config. With --enabled or --disabled
only the names of formatters whose format-on-save flag matches are printed,
one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&opts.enabled, "enabled", false, "Only formatters with format on save enabled")
	cmd.Flags().BoolVar(&opts.disabled, "disabled", false, "Only formatters with format on save disabled")
	cmd.Flags().StringVar(&opts.root, "root", "", "Project root holding the config file (default: current directory)")
	cmd.MarkFlagsMutuallyExclusive("enabled", "disabled")

	return cmd
}

func runList(ctx context.Context, opts listOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	root := opts.root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = cwd
	}

	dispatcher, err := newDispatcher(ctx, root, "", opts.runner, opts.registryOpts, errOut)
	if err != nil {
		return err
	}

	switch {
	case opts.enabled:
		printNames(out, dispatcher.Candidates(dispatch.WhichEnabled))
		return nil
	case opts.disabled:
		printNames(out, dispatcher.Candidates(dispatch.WhichDisabled))
		return nil
	}

	if dispatcher.Registry().Len() == 0 {
		fmt.Fprintln(errOut, color.YellowString("no formatters configured"))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCES\tINPUT\tPRIORITY\tON SAVE")
	for _, f := range dispatcher.Registry().All() {
		onSave := color.New(color.Faint).Sprint("off")
		if f.FormatOnSave() {
			onSave = color.GreenString("on")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", f.Name(), strings.Join(f.Sources(), ","), f.InputMode(), f.Priority(), onSave)
	}

	return w.Flush()
}

func printNames(out io.Writer, names []string) {
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
}
