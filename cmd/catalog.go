// File: cmd/catalog.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfallows/citewright/internal/catalog"
)

// newCatalogCmd lists the providers and sources the catalog knows about.
func newCatalogCmd() *cobra.Command {
	var catalogPath string

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Lists the configured providers and sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Providers:")
			for _, id := range cat.ProviderIDs() {
				p, err := cat.Provider(id)
				if err != nil {
					return err
				}
				line := fmt.Sprintf("  %-16s %s", id, p.Name)
				if p.DefaultSource != "" {
					line += fmt.Sprintf(" (source: %s)", p.DefaultSource)
				}
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out, "Sources:")
			for _, id := range cat.SourceIDs() {
				s, err := cat.Source(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-16s %s\n", id, s.Name)
			}
			return nil
		},
	}

	catalogCmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to a catalog file merged over the built-in definitions.")
	return catalogCmd
}
