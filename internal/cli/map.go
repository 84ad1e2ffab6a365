package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/snapcomp/pkg/cache"
	"github.com/matzehuels/snapcomp/pkg/manifest"
	"github.com/matzehuels/snapcomp/pkg/pipeline"
)

// mapCommand creates the map command for inspecting region geometry.
func (c *CLI) mapCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "map [manifest]",
		Short: "Print the pixel rect of every capturable region (debug tool)",
		Long: `Print the pixel rect of every capturable region (debug tool).

Only the base raster's header is read; nothing is captured. Use this to
check that a manifest's bounds and padding match the base raster: a scale
that differs between the x and y axes means the base was rendered with
other bounds.`,
		Example: `  snapcomp map request.toml
  snapcomp map request.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMap(cmd.Context(), args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")

	return cmd
}

func (c *CLI) runMap(ctx context.Context, path string, asJSON bool) error {
	m, err := manifest.Load(path)
	if err != nil {
		return fmt.Errorf("load manifest %s: %w", path, err)
	}

	runner := pipeline.NewRunner(cache.NewNullCache(), nil, loggerFromContext(ctx))
	runner.Loader = newLoader(m.Dir)
	plan, err := runner.Plan(ctx, m.Options)
	if err != nil {
		return fmt.Errorf("plan %s: %w", path, err)
	}

	if asJSON {
		enc := json.NewEncoder(c.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	out := c.printer()
	out.keyValue("Base", fmt.Sprintf("%dx%d", plan.Width, plan.Height))
	out.keyValue("Scale", fmt.Sprintf("%.4f px/unit", plan.Scale))
	out.keyValue("Overlay", fmt.Sprintf("%d shape(s)", plan.OverlayShapes))
	if plan.SkewY > pipeline.SkewWarnThreshold {
		out.warning("Vertical scale differs by %.2f%%; bounds may not match the base raster", plan.SkewY*100)
	}
	if len(plan.Regions) == 0 {
		out.info("No capturable regions; the base raster passes through unchanged")
		return nil
	}
	out.newline()
	for _, r := range plan.Regions {
		out.keyValue(r.Region.ID, r.Rect.String())
	}
	return nil
}
