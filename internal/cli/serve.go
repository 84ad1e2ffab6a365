package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/snapcomp/internal/server"
)

// serveCommand creates the serve command for the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr       string
		allowFiles bool
		noCache    bool
		surfaces   surfaceFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compositing HTTP API",
		Long: `Serve the compositing HTTP API.

Routes:
  POST /v1/composite   JSON request in, image out (?output=json for metadata)
  GET  /healthz        liveness probe
  GET  /version        build information

Requests may reference data URLs and http(s) sources. File paths are
rejected unless --allow-files is set.`,
		Example: `  snapcomp serve --addr :8080 --surface-url 'http://snapshots.internal/{id}.png'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			cfg.AllowFiles = cfg.AllowFiles || allowFiles
			return c.runServe(cmd.Context(), cfg, runnerFlags{
				noCache: noCache,
				capture: surfaces.merge(c.Config.Capture),
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().BoolVar(&allowFiles, "allow-files", false, "allow requests to read local files")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	surfaces.register(cmd)

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg ServerConfig, flags runnerFlags) error {
	runner, closeRunner, err := c.newRunner(ctx, flags)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer closeRunner()
	runner.Loader = newLoader("")
	runner.Loader.DisableFiles = !cfg.AllowFiles
	if cfg.AllowFiles {
		c.Logger.Warn("file sources enabled; requests can read any file this process can")
	}

	srv := server.New(runner, server.Config{
		Addr:           cfg.Addr,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: time.Duration(cfg.Timeout),
	}, c.Logger)

	c.printer().info("Serving on %s", cfg.Addr)
	return srv.ListenAndServe(ctx)
}
