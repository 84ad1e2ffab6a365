// Package cli implements the snapcomp command-line interface.
//
// This package provides commands for compositing request manifests,
// inspecting their geometry, serving the HTTP API and managing the artifact
// cache and the surface store. The CLI is built using cobra and supports
// verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - composite: Composite a request manifest into one image
//   - map: Print the pixel rect of every capturable region (debug tool)
//   - serve: Serve the HTTP API
//   - surfaces: Push and remove snapshots in the MongoDB surface store
//   - cache: Manage the artifact cache
//
// # Configuration
//
// Defaults come from $XDG_CONFIG_HOME/snapcomp/config.toml (or --config).
// Flags override the config file.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/snapcomp/pkg/buildinfo"
	"github.com/matzehuels/snapcomp/pkg/cache"
	"github.com/matzehuels/snapcomp/pkg/capture"
	"github.com/matzehuels/snapcomp/pkg/capture/browser"
	"github.com/matzehuels/snapcomp/pkg/capture/dir"
	"github.com/matzehuels/snapcomp/pkg/capture/httpsurface"
	"github.com/matzehuels/snapcomp/pkg/capture/mongostore"
	"github.com/matzehuels/snapcomp/pkg/httputil"
	"github.com/matzehuels/snapcomp/pkg/pipeline"
	"github.com/matzehuels/snapcomp/pkg/raster"
	"github.com/matzehuels/snapcomp/pkg/scene/vector"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "snapcomp"

	// redisPrefix namespaces artifact keys in a shared Redis.
	redisPrefix = appName + ":"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config

	// Out receives command output. Defaults to os.Stdout.
	Out io.Writer

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: defaultConfig(),
		Out:    os.Stdout,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "snapcomp composites live-content snapshots into exported diagrams",
		Long:         `snapcomp flattens a rasterized diagram, independently captured snapshots of its live-content regions and an overlay of the remaining shapes into one image.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.Config = cfg
			if path != "" {
				c.Logger.Debug("loaded config", "path", path)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.SetOut(c.Out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/snapcomp/config.toml)")

	// Register all subcommands
	root.AddCommand(c.compositeCommand())
	root.AddCommand(c.mapCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.surfacesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// runnerFlags are the per-invocation overrides of the capture config.
type runnerFlags struct {
	noCache bool
	capture CaptureConfig
}

// newRunner creates a pipeline runner for CLI use. The returned close func
// releases the cache and every provider.
func (c *CLI) newRunner(ctx context.Context, flags runnerFlags) (*pipeline.Runner, func(), error) {
	ac, err := c.newCache(ctx, flags.noCache)
	if err != nil {
		return nil, nil, err
	}
	runner := pipeline.NewRunner(ac, cache.NewScopedKeyer(nil, buildinfo.CacheScope()), c.Logger)
	runner.Exporter = vector.New()

	provider, closeProviders, err := c.newProvider(ctx, flags.capture)
	if err != nil {
		_ = runner.Close()
		return nil, nil, err
	}
	runner.Provider = provider

	return runner, func() {
		closeProviders()
		if err := runner.Close(); err != nil {
			c.Logger.Warn("close cache", "err", err)
		}
	}, nil
}

// newProvider chains every configured snapshot provider.
func (c *CLI) newProvider(ctx context.Context, cfg CaptureConfig) (capture.Provider, func(), error) {
	var chain capture.Chain
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.SurfaceDir != "" {
		chain = append(chain, dir.New(cfg.SurfaceDir))
		c.Logger.Debug("surface provider", "kind", "dir", "dir", cfg.SurfaceDir)
	}
	if cfg.SurfaceURL != "" {
		p, err := httpsurface.New(cfg.SurfaceURL, &httputil.Fetcher{})
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, p)
		c.Logger.Debug("surface provider", "kind", "url", "template", cfg.SurfaceURL)
	}
	if cfg.Mongo {
		store, err := c.openStore(ctx)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		chain = append(chain, store)
		closers = append(closers, func() { _ = store.Close(context.Background()) })
		c.Logger.Debug("surface provider", "kind", "mongo", "collection", c.Config.Mongo.Collection)
	}
	if cfg.BrowserPage != "" {
		p, err := browser.New(ctx, browser.Config{
			PageURL:       cfg.BrowserPage,
			ElementFormat: cfg.BrowserElement,
			RemoteURL:     cfg.BrowserRemote,
			ExecPath:      cfg.ChromePath,
			Settle:        time.Duration(cfg.BrowserSettle),
			Logger:        c.Logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		chain = append(chain, p)
		closers = append(closers, func() { _ = p.Close() })
		c.Logger.Debug("surface provider", "kind", "browser", "page", cfg.BrowserPage)
	}

	if len(chain) == 0 {
		c.Logger.Debug("no surface provider configured, using inline snapshots only")
	}
	return chain, closeAll, nil
}

// openStore connects to the configured surface collection.
func (c *CLI) openStore(ctx context.Context) (*mongostore.Store, error) {
	return mongostore.New(ctx, mongostore.Config{
		URI:        c.Config.Mongo.URI,
		Database:   c.Config.Mongo.Database,
		Collection: c.Config.Mongo.Collection,
	})
}

// newCache opens the configured artifact cache.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.Config.Cache.Backend {
	case cacheNone:
		return cache.NewNullCache(), nil
	case cacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Config.Cache.RedisAddr,
			Password: c.Config.Cache.RedisPassword,
			DB:       c.Config.Cache.RedisDB,
			Prefix:   redisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", c.Config.Cache.RedisAddr, err)
		}
		return rc, nil
	case cacheFile, "":
		dir, err := c.cacheDir()
		if err != nil {
			c.Logger.Warn("cache disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", dir, err)
		}
		return fc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want file, redis or none)", c.Config.Cache.Backend)
	}
}

// newLoader returns the raster loader for CLI requests. Relative paths
// resolve against baseDir.
func newLoader(baseDir string) *raster.Loader {
	return &raster.Loader{BaseDir: baseDir, Fetcher: &httputil.Fetcher{}}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the configured cache directory or the XDG default.
func (c *CLI) cacheDir() (string, error) {
	if c.Config.Cache.Dir != "" {
		return c.Config.Cache.Dir, nil
	}
	return cacheDir()
}

// cacheDir returns the cache directory using XDG standard (~/.cache/snapcomp/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// errNoStore is returned by surface commands when MongoDB is not configured.
var errNoStore = errors.New("no surface store configured: set [mongo] uri in the config file or pass --mongo-uri")
