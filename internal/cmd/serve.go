package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/cristianradulescu/format-ls/internal/logging"
	"github.com/cristianradulescu/format-ls/internal/server"
	"github.com/spf13/cobra"
	"go.lsp.dev/jsonrpc2"
)

const serveCommandName = "serve"

func NewServeCommand() *cobra.Command {
	var stdio bool

	cmd := &cobra.Command{
		Use:   serveCommandName,
		Short: "Serve the language server protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	// Accepted for clients that always pass it; stdio is the only transport.
	cmd.Flags().BoolVar(&stdio, "stdio", true, "Use stdin/stdout for communication")

	return cmd
}

func runServe(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("%s%s Starting format-ls server", logging.LogTagLSP, logging.LogTagMain)

	stream := jsonrpc2.NewStream(struct {
		io.Reader
		io.Writer
		io.Closer
	}{
		in,
		out,
		io.NopCloser(in),
	})

	conn := jsonrpc2.NewConn(stream)
	log.Printf("%s%s LSP server connection established", logging.LogTagLSP, logging.LogTagMain)

	lspServer := server.New(conn)
	conn.Go(ctx, lspServer.Handle)

	log.Printf("%s%s LSP server is running, waiting for requests...", logging.LogTagLSP, logging.LogTagMain)
	<-conn.Done()

	if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	log.Printf("%s%s LSP server shutdown complete", logging.LogTagLSP, logging.LogTagMain)
	return nil
}
