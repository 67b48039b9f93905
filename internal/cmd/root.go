package cmd

import (
	"io"
	"log"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the format-ls command. Without a subcommand it
// serves the language server on stdio.
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   config.Name,
		Short: "Language server that formats documents with external tools",
		Long: `format-ls routes formatting requests to external formatter programs
chosen by the document's language, as configured in .format-ls.json
(or .format-ls.yaml) at the project root.

Run without arguments to serve the language server protocol on stdio.`,
		Version:      config.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// serve always logs to stderr, the CLI only with --verbose
			if cmd.Name() != serveCommandName && cmd != cmd.Root() && !verbose {
				log.SetOutput(io.Discard)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewFormatCommand())
	cmd.AddCommand(NewListCommand())

	return cmd
}
