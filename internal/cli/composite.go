package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/snapcomp/pkg/encode"
	"github.com/matzehuels/snapcomp/pkg/manifest"
)

// compositeOpts holds the command-line flags for the composite command.
type compositeOpts struct {
	output      string // output file (default: manifest output or <manifest>.<ext>)
	format      string // jpeg or png
	quality     int    // JPEG quality 1..100
	concurrency int    // simultaneous captures
	dataURL     bool   // print a data URL instead of writing a file
	jsonReport  bool   // print the result metadata as JSON
	noCache     bool   // disable the artifact cache
	refresh     bool   // recompute even when cached
	surfaces    surfaceFlags
}

// surfaceFlags override the [capture] section of the config file.
type surfaceFlags struct {
	dir         string
	url         string
	browserPage string
	mongo       bool
}

func (f *surfaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "surfaces", "", "directory of snapshot files named <region-id>.png")
	cmd.Flags().StringVar(&f.url, "surface-url", "", "snapshot URL template containing {id}")
	cmd.Flags().StringVar(&f.browserPage, "browser-page", "", "page URL to capture region elements from with headless Chrome")
	cmd.Flags().BoolVar(&f.mongo, "mongo", false, "read snapshots from the MongoDB surface store")
}

// merge returns cfg with every set flag applied.
func (f surfaceFlags) merge(cfg CaptureConfig) CaptureConfig {
	if f.dir != "" {
		cfg.SurfaceDir = f.dir
	}
	if f.url != "" {
		cfg.SurfaceURL = f.url
	}
	if f.browserPage != "" {
		cfg.BrowserPage = f.browserPage
	}
	if f.mongo {
		cfg.Mongo = true
	}
	return cfg
}

// compositeCommand creates the composite command.
func (c *CLI) compositeCommand() *cobra.Command {
	var opts compositeOpts

	cmd := &cobra.Command{
		Use:   "composite [manifest]",
		Short: "Composite a request manifest into one image",
		Long: `Composite a request manifest into one image.

The manifest (JSON or TOML) names the base raster, the canvas bounds and
padding, and the selected shapes. Capturable shapes are filled from inline
snapshots in the manifest, then from the configured surface providers.
Regions that cannot be captured keep their placeholder and are reported.

Results are cached locally for faster subsequent runs.`,
		Example: `  # Composite with snapshots from a directory
  snapcomp composite request.toml --surfaces ./snapshots -o out.jpg

  # PNG output, printed as a data URL
  snapcomp composite request.json --format png --data-url`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runComposite(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: manifest output or <manifest>.<ext>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: jpeg (default), png")
	cmd.Flags().IntVarP(&opts.quality, "quality", "q", 0, "JPEG quality 1-100 (default 85)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "simultaneous region captures (default 8)")
	cmd.Flags().BoolVar(&opts.dataURL, "data-url", false, "print the result as a data URL instead of writing a file")
	cmd.Flags().BoolVar(&opts.jsonReport, "json", false, "print the result metadata as JSON")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute even when a cached artifact exists")
	opts.surfaces.register(cmd)

	return cmd
}

// runComposite loads the manifest, runs the pipeline, and writes output.
func (c *CLI) runComposite(ctx context.Context, path string, opts compositeOpts) error {
	logger := loggerFromContext(ctx)
	out := c.printer()

	m, err := manifest.Load(path)
	if err != nil {
		return fmt.Errorf("load manifest %s: %w", path, err)
	}
	req := m.Options
	if opts.format != "" {
		req.Format = opts.format
	}
	if opts.quality != 0 {
		req.Quality = opts.quality
	}
	if opts.concurrency != 0 {
		req.Concurrency = opts.concurrency
	}
	req.Refresh = req.Refresh || opts.refresh
	c.Config.apply(&req)

	runner, closeRunner, err := c.newRunner(ctx, runnerFlags{
		noCache: opts.noCache,
		capture: opts.surfaces.merge(c.Config.Capture),
	})
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer closeRunner()
	runner.Loader = newLoader(m.Dir)

	prog := newProgress(logger)
	spinner := newSpinner(ctx, os.Stderr, fmt.Sprintf("Compositing %s...", filepath.Base(path)))
	spinner.Start()

	result, err := runner.Execute(ctx, req)
	spinner.Stop()
	if err != nil {
		out.errorf("Composite failed")
		return fmt.Errorf("composite %s: %w", path, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	prog.done("composited", "regions", len(result.Regions), "bytes", len(result.Data))

	if opts.jsonReport {
		enc := json.NewEncoder(c.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if opts.dataURL {
		fmt.Fprintln(c.Out, result.DataURL())
		return nil
	}

	outputPath := opts.output
	if outputPath == "" {
		outputPath = m.Output
	}
	if outputPath == "" {
		outputPath = defaultOutputPath(path, result.MediaType)
	}
	if err := writeFile(result.Data, outputPath); err != nil {
		return fmt.Errorf("write output %s: %w", outputPath, err)
	}

	out.success("Composite complete")
	out.file(outputPath)
	out.stats(result)
	out.skipped(result)
	if result.Stats.Failed > 0 {
		out.newline()
		out.nextStep("Inspect region geometry", "snapcomp map "+path)
	}
	return nil
}

// defaultOutputPath derives <manifest>.<ext> from the manifest path.
func defaultOutputPath(manifestPath, mediaType string) string {
	ext := encode.FormatJPEG.Ext()
	if mediaType == encode.FormatPNG.MediaType() {
		ext = encode.FormatPNG.Ext()
	} else if i := strings.LastIndex(mediaType, "/"); i >= 0 && mediaType != encode.FormatJPEG.MediaType() {
		ext = mediaType[i+1:]
	}
	base := strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath))
	return base + "." + ext
}

// writeFile writes data to path, creating parent directories.
// An empty path or "-" writes to stdout.
func writeFile(data []byte, path string) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
