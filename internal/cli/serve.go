package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/substantiate/internal/api"
	"github.com/ppiankov/substantiate/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes linking, auditing, literature search and compliance
checks over HTTP, plus /health and Prometheus /metrics.

Example:
  substantiate serve --addr :8080
  SUBSTANTIATE_DATABASE_URL=postgres://localhost/substantiate substantiate serve
  substantiate serve --fixture testdata/project.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	a.logger.Info("starting API server", logging.String("addr", addr))
	return api.NewServer(a.engine, a.cfg.Server, a.logger, a.metrics).Run(ctx, addr)
}
