package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/snapcomp/pkg/capture/mongostore"
)

// surfacesCommand creates the surfaces command for the MongoDB surface store.
func (c *CLI) surfacesCommand() *cobra.Command {
	var uri string

	cmd := &cobra.Command{
		Use:   "surfaces",
		Short: "Manage snapshots in the MongoDB surface store",
		Long: `Manage snapshots in the MongoDB surface store.

Stored snapshots are served to "composite --mongo" and "serve --mongo" by
region id. A "shape:" prefix on the id is ignored.`,
	}
	cmd.PersistentFlags().StringVar(&uri, "mongo-uri", "", "MongoDB connection URI (overrides [mongo] uri)")

	cmd.AddCommand(c.surfacesPushCommand(&uri))
	cmd.AddCommand(c.surfacesGetCommand(&uri))
	cmd.AddCommand(c.surfacesRemoveCommand(&uri))

	return cmd
}

// withStore opens the surface store for the duration of fn.
func (c *CLI) withStore(ctx context.Context, uri string, fn func(*mongostore.Store) error) error {
	if uri != "" {
		c.Config.Mongo.URI = uri
	}
	if c.Config.Mongo.URI == "" {
		return errNoStore
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return fmt.Errorf("connect surface store: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			c.Logger.Warn("close surface store", "err", err)
		}
	}()
	return fn(store)
}

// surfacesPushCommand creates the "surfaces push" subcommand.
func (c *CLI) surfacesPushCommand(uri *string) *cobra.Command {
	return &cobra.Command{
		Use:   "push [region-id] [image]",
		Short: "Store a snapshot for a region",
		Example: `  snapcomp surfaces push shape:chart chart.png
  snapcomp surfaces push map https://tiles.example.com/map.png`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := newLoader("").Load(ctx, args[1])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[1], err)
			}
			return c.withStore(ctx, *uri, func(store *mongostore.Store) error {
				doc, err := store.Put(ctx, args[0], raw)
				if err != nil {
					return err
				}
				out := c.printer()
				out.success("Stored snapshot %s", doc.ID)
				out.detail("%dx%d %s, %d bytes", doc.Width, doc.Height, doc.MediaType, len(doc.Data))
				return nil
			})
		},
	}
}

// surfacesGetCommand creates the "surfaces get" subcommand.
func (c *CLI) surfacesGetCommand(uri *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get [region-id]",
		Short: "Write a stored snapshot to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, *uri, func(store *mongostore.Store) error {
				doc, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if err := writeFile(doc.Data, output); err != nil {
					return fmt.Errorf("write output %s: %w", output, err)
				}
				if output != "" && output != "-" {
					out := c.printer()
					out.success("Snapshot %s", doc.ID)
					out.file(output)
					out.detail("%dx%d %s, updated %s", doc.Width, doc.Height, doc.MediaType, doc.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

// surfacesRemoveCommand creates the "surfaces rm" subcommand.
func (c *CLI) surfacesRemoveCommand(uri *string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [region-id...]",
		Aliases: []string{"remove"},
		Short:   "Remove stored snapshots",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, *uri, func(store *mongostore.Store) error {
				for _, id := range args {
					if err := store.Delete(ctx, id); err != nil {
						return err
					}
				}
				c.printer().success("Removed %d snapshot(s)", len(args))
				return nil
			})
		},
	}
}
