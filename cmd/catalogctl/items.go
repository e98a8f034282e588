package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
)

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.service.ListItems(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			return writeTable(cmd.OutOrStdout(), items)
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := c.service.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), item)
			}
			return writeTable(cmd.OutOrStdout(), []*simplecatalog.CatalogItem{item})
		},
	}
}

func newAddCmd(c *cli) *cobra.Command {
	var name, description, price, category, imagePath string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item with its image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			// Flags left unset are absent fields, not empty ones.
			optional := func(flag, value string) *string {
				if !flags.Changed(flag) {
					return nil
				}
				return &value
			}

			req := simplecatalog.CreateItemRequest{
				Fields: simplecatalog.ItemFields{
					Name:        optional("name", name),
					Description: optional("description", description),
					Price:       optional("price", price),
					Category:    optional("category", category),
				},
			}

			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return fmt.Errorf("failed to open image: %w", err)
				}
				defer f.Close()

				info, err := f.Stat()
				if err != nil {
					return fmt.Errorf("failed to stat image: %w", err)
				}
				req.Image = &simplecatalog.Attachment{
					Reader:      f,
					Size:        info.Size(),
					ContentType: mime.TypeByExtension(filepath.Ext(imagePath)),
					FileName:    filepath.Base(imagePath),
				}
			}

			item, err := c.service.CreateItem(cmd.Context(), req)
			if err != nil {
				if errs := simplecatalog.ValidationErrors(err); len(errs) > 0 {
					for _, e := range errs {
						fmt.Fprintln(cmd.ErrOrStderr(), "  -", e)
					}
				}
				return err
			}
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), item)
			}
			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Item name")
	cmd.Flags().StringVar(&description, "description", "", "Item description")
	cmd.Flags().StringVar(&price, "price", "", "Item price")
	cmd.Flags().StringVar(&category, "category", "", "Item category")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to the item image")
	return cmd
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an item and its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.service.RemoveItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.CleanupErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: image %s was not deleted: %v\n", result.Item.ImageRef, result.CleanupErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed", result.Item.ID)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, items []*simplecatalog.CatalogItem) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCATEGORY\tIMAGE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Price.StringFixed(2), item.Category, item.ImageRef)
	}
	return tw.Flush()
}
